package notify

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
)

func TestEmailSenderBuildsAndSendsMessage(t *testing.T) {
	sender := NewEmailSender("smtp.clinic.test", 587, "mailer", "secret", "noreply@clinic.test", nil)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sender.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = msg
		return nil
	}

	err := sender.Notify(context.Background(), models.AppointmentEvent{
		Type:          models.EventAppointmentCreated,
		AppointmentID: "a1",
		DoctorName:    "Dr. Sari",
		PatientName:   "Pat One",
		PatientEmail:  "pat@mail.test",
		Date:          "2024-06-03",
		StartTime:     "09:00",
		EndTime:       "09:30",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.clinic.test:587", gotAddr)
	assert.Equal(t, "noreply@clinic.test", gotFrom)
	assert.Equal(t, []string{"pat@mail.test"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Appointment confirmed: 2024-06-03 09:00")
	assert.Contains(t, string(gotMsg), "Dr. Sari")
}

func TestEmailSenderSkipsPatientsWithoutEmail(t *testing.T) {
	sender := NewEmailSender("smtp.clinic.test", 587, "", "", "noreply@clinic.test", nil)

	called := false
	sender.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	err := sender.Notify(context.Background(), models.AppointmentEvent{AppointmentID: "a1"})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEmailSubjectFollowsEventType(t *testing.T) {
	msg := buildMessage("noreply@clinic.test", models.AppointmentEvent{
		Type:         models.EventAppointmentCancelled,
		PatientName:  "Pat One",
		PatientEmail: "pat@mail.test",
		Date:         "2024-06-03",
		StartTime:    "09:00",
	})
	assert.Contains(t, string(msg), "Subject: Appointment cancelled")
}
