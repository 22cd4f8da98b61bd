package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
)

// CalendarClient pushes appointment events to an external calendar webhook.
type CalendarClient struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewCalendarClient constructs a webhook-backed calendar notifier.
func NewCalendarClient(webhookURL string, timeout time.Duration, logger *zap.Logger) *CalendarClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarClient{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name identifies the notifier in logs and metrics.
func (c *CalendarClient) Name() string { return "calendar" }

// Notify posts the appointment event payload to the calendar webhook.
func (c *CalendarClient) Notify(ctx context.Context, event models.AppointmentEvent) error {
	if c.webhookURL == "" {
		c.logger.Debug("skipping calendar sync, webhook not configured", zap.String("appointment_id", event.AppointmentID))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal calendar event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post calendar event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("calendar webhook returned status %d", resp.StatusCode)
	}
	return nil
}
