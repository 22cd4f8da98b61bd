package models

import "time"

// AppointmentStatus enumerates the appointment lifecycle states.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// IsValidAppointmentStatus reports whether s is a known status.
func IsValidAppointmentStatus(s AppointmentStatus) bool {
	switch s {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Appointment represents a booked slot. Dates are YYYY-MM-DD, times HH:MM,
// all in the clinic's local zone. For a given (doctor, date) no two
// non-cancelled appointments may share a start time; the appointments table
// enforces this with a partial unique index.
type Appointment struct {
	ID        string            `db:"id" json:"id"`
	DoctorID  string            `db:"doctor_id" json:"doctor_id"`
	PatientID string            `db:"patient_id" json:"patient_id"`
	Date      string            `db:"date" json:"date"`
	StartTime string            `db:"start_time" json:"start_time"`
	EndTime   string            `db:"end_time" json:"end_time"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Reason    *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter captures query options for listing appointments.
type AppointmentFilter struct {
	DoctorID  string
	PatientID string
	Date      string
	Status    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AppointmentEventType enumerates post-commit notification event kinds.
type AppointmentEventType string

const (
	EventAppointmentCreated   AppointmentEventType = "created"
	EventAppointmentUpdated   AppointmentEventType = "updated"
	EventAppointmentCancelled AppointmentEventType = "cancelled"
)

// AppointmentEvent is emitted to notification collaborators after a booking,
// reschedule or cancellation commits. Delivery is best effort and never
// reverses the committed appointment.
type AppointmentEvent struct {
	Type          AppointmentEventType `json:"type"`
	AppointmentID string               `json:"appointment_id"`
	DoctorName    string               `json:"doctor_name"`
	DoctorEmail   string               `json:"doctor_email,omitempty"`
	PatientName   string               `json:"patient_name"`
	PatientEmail  string               `json:"patient_email,omitempty"`
	Date          string               `json:"date"`
	StartTime     string               `json:"start_time"`
	EndTime       string               `json:"end_time"`
}
