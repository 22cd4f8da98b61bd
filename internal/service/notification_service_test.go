package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
)

type stubNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.AppointmentEvent
}

func (n *stubNotifier) Name() string { return n.name }

func (n *stubNotifier) Notify(_ context.Context, event models.AppointmentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}

func TestPublishFansOutToAllChannels(t *testing.T) {
	email := &stubNotifier{name: "email"}
	calendar := &stubNotifier{name: "calendar"}
	svc := NewNotificationService([]Notifier{email, calendar}, nil, NotificationConfig{Workers: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Publish(models.AppointmentEvent{
		Type:          models.EventAppointmentCreated,
		AppointmentID: "a1",
		PatientEmail:  "p1@mail.test",
	})

	waitFor(t, func() bool { return email.count() == 1 && calendar.count() == 1 })
	email.mu.Lock()
	defer email.mu.Unlock()
	assert.Equal(t, "a1", email.events[0].AppointmentID)
}

func TestFailingChannelDoesNotBlockOthers(t *testing.T) {
	failing := &stubNotifier{name: "email", err: errors.New("smtp down")}
	healthy := &stubNotifier{name: "calendar"}
	svc := NewNotificationService([]Notifier{failing, healthy}, nil, NotificationConfig{Workers: 1, MaxRetries: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Publish(models.AppointmentEvent{Type: models.EventAppointmentCancelled, AppointmentID: "a2"})

	waitFor(t, func() bool { return healthy.count() >= 1 })
	assert.GreaterOrEqual(t, failing.count(), 1)
}

func TestPublishWithoutChannelsIsNoop(t *testing.T) {
	svc := NewNotificationService(nil, nil, NotificationConfig{}, nil)
	// Never started; Publish must not panic or block.
	svc.Publish(models.AppointmentEvent{AppointmentID: "a3"})
}
