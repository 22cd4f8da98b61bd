package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/pkg/jobs"
)

// Notifier delivers one channel of post-commit appointment notices.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event models.AppointmentEvent) error
}

// NotificationConfig tunes the background delivery workers.
type NotificationConfig struct {
	Workers    int
	MaxRetries int
	Timeout    time.Duration
}

// NotificationService fans appointment events out to the configured channels
// on a background queue. Delivery is best effort: a failed or slow channel is
// retried and eventually dropped, never unwinding the committed booking.
type NotificationService struct {
	queue     *jobs.Queue
	notifiers []Notifier
	metrics   *MetricsService
	timeout   time.Duration
	logger    *zap.Logger
}

// NewNotificationService constructs the dispatcher and its queue.
func NewNotificationService(notifiers []Notifier, metrics *MetricsService, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	s := &NotificationService{
		notifiers: notifiers,
		metrics:   metrics,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Publish enqueues an appointment event for delivery. Errors are logged and
// swallowed so callers on the booking path are never blocked by notification
// infrastructure.
func (s *NotificationService) Publish(event models.AppointmentEvent) {
	if s == nil || len(s.notifiers) == 0 {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Type),
		Payload: event,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("appointment_id", event.AppointmentID),
			zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.AppointmentEvent)
	if !ok {
		s.logger.Error("dropping notification with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	// Each channel gets its own timeout; one slow channel must not starve
	// the others or the worker pool.
	var firstErr error
	for _, notifier := range s.notifiers {
		channelCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := notifier.Notify(channelCtx, event)
		cancel()
		if err != nil {
			s.metrics.RecordNotificationFailure(notifier.Name())
			s.logger.Warn("notification delivery failed",
				zap.String("channel", notifier.Name()),
				zap.String("appointment_id", event.AppointmentID),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
