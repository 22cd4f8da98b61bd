package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
)

// EmailSender delivers appointment notices over SMTP.
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *zap.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender constructs an SMTP-backed sender.
func NewEmailSender(host string, port int, username, password, from string, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

// Name identifies the notifier in logs and metrics.
func (s *EmailSender) Name() string { return "email" }

// Notify sends the appointment notice to the patient.
func (s *EmailSender) Notify(ctx context.Context, event models.AppointmentEvent) error {
	if event.PatientEmail == "" {
		s.logger.Debug("skipping email notice, patient has no email", zap.String("appointment_id", event.AppointmentID))
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	msg := buildMessage(s.from, event)
	if err := s.send(addr, auth, s.from, []string{event.PatientEmail}, msg); err != nil {
		return fmt.Errorf("send appointment email: %w", err)
	}
	return nil
}

func buildMessage(from string, event models.AppointmentEvent) []byte {
	var subject string
	switch event.Type {
	case models.EventAppointmentCancelled:
		subject = fmt.Sprintf("Appointment cancelled: %s %s", event.Date, event.StartTime)
	case models.EventAppointmentUpdated:
		subject = fmt.Sprintf("Appointment updated: %s %s", event.Date, event.StartTime)
	default:
		subject = fmt.Sprintf("Appointment confirmed: %s %s", event.Date, event.StartTime)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", event.PatientEmail)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	fmt.Fprintf(&b, "Dear %s,\r\n\r\n", event.PatientName)
	fmt.Fprintf(&b, "Your appointment with %s on %s from %s to %s is %s.\r\n",
		event.DoctorName, event.Date, event.StartTime, event.EndTime, pastTense(event.Type))
	return []byte(b.String())
}

func pastTense(eventType models.AppointmentEventType) string {
	switch eventType {
	case models.EventAppointmentCancelled:
		return "cancelled"
	case models.EventAppointmentUpdated:
		return "updated"
	default:
		return "confirmed"
	}
}
