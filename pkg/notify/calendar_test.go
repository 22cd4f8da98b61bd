package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
)

func TestCalendarClientPostsEvent(t *testing.T) {
	var received models.AppointmentEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewCalendarClient(server.URL, time.Second, nil)
	err := client.Notify(context.Background(), models.AppointmentEvent{
		Type:          models.EventAppointmentUpdated,
		AppointmentID: "a1",
		Date:          "2024-06-03",
		StartTime:     "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", received.AppointmentID)
	assert.Equal(t, models.EventAppointmentUpdated, received.Type)
}

func TestCalendarClientSurfacesWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewCalendarClient(server.URL, time.Second, nil)
	err := client.Notify(context.Background(), models.AppointmentEvent{AppointmentID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCalendarClientSkipsWhenUnconfigured(t *testing.T) {
	client := NewCalendarClient("", time.Second, nil)
	err := client.Notify(context.Background(), models.AppointmentEvent{AppointmentID: "a1"})
	assert.NoError(t, err)
}
