package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/internal/service"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
	"github.com/medikita/clinic-booking-api/pkg/response"
)

type patientFinderStub struct {
	patients map[string]*models.Patient
}

func (s *patientFinderStub) FindByID(_ context.Context, id string) (*models.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

// appointmentStoreStub backs both the repository and lister interfaces and
// mirrors the unique index behaviour for non-cancelled rows.
type appointmentStoreStub struct {
	mu           sync.Mutex
	appointments map[string]*models.Appointment
	nextID       int
}

func newAppointmentStoreStub() *appointmentStoreStub {
	return &appointmentStoreStub{appointments: make(map[string]*models.Appointment)}
}

func (s *appointmentStoreStub) List(_ context.Context, _ models.AppointmentFilter) ([]models.Appointment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *appointmentStoreStub) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *a
	return &clone, nil
}

func (s *appointmentStoreStub) ListActiveByDoctorAndDate(_ context.Context, doctorID, date string) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status != models.AppointmentCancelled {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *appointmentStoreStub) Create(_ context.Context, appointment *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appointments {
		if a.DoctorID == appointment.DoctorID && a.Date == appointment.Date &&
			a.StartTime == appointment.StartTime && a.Status != models.AppointmentCancelled {
			return appErrors.ErrBookingConflict
		}
	}
	s.nextID++
	appointment.ID = "appt-" + string(rune('0'+s.nextID))
	clone := *appointment
	s.appointments[appointment.ID] = &clone
	return nil
}

func (s *appointmentStoreStub) Move(_ context.Context, appointment *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *appointment
	s.appointments[appointment.ID] = &clone
	return nil
}

func (s *appointmentStoreStub) UpdateStatus(_ context.Context, id string, status models.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = status
	return nil
}

func (s *appointmentStoreStub) UpdateReason(_ context.Context, id string, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Reason = reason
	return nil
}

func newAppointmentFixture(t *testing.T) (*AppointmentHandler, *appointmentStoreStub) {
	t.Helper()
	doctors := &doctorFinderStub{doctors: map[string]*models.Doctor{"d1": stubDoctor(t)}}
	patients := &patientFinderStub{patients: map[string]*models.Patient{
		"p1": {ID: "p1", Email: "p1@mail.test", FullName: "Pat One", Active: true},
	}}
	store := newAppointmentStoreStub()
	availability := service.NewAvailabilityService(doctors, store, nil, nil, 0, nil)
	bookings := service.NewBookingService(store, doctors, patients, availability, nil, nil, nil, nil)
	return NewAppointmentHandler(bookings), store
}

func postJSON(t *testing.T, handler gin.HandlerFunc, target string, payload interface{}, params gin.Params) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var body []byte
	if raw, ok := payload.([]byte); ok {
		body = raw
	} else {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	req, _ := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = params
	handler(c)
	return w
}

func TestAppointmentBookSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAppointmentFixture(t)

	w := postJSON(t, handler.Book, "/appointments", service.BookAppointmentRequest{
		DoctorID:  "d1",
		PatientID: "p1",
		Date:      "2024-06-03",
		StartTime: "09:00",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "09:30", envelope.Data.EndTime)
	assert.Equal(t, models.AppointmentScheduled, envelope.Data.Status)
}

func TestAppointmentBookInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAppointmentFixture(t)

	w := postJSON(t, handler.Book, "/appointments", []byte(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppointmentBookTakenSlotReturnsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAppointmentFixture(t)

	first := postJSON(t, handler.Book, "/appointments", service.BookAppointmentRequest{
		DoctorID: "d1", PatientID: "p1", Date: "2024-06-03", StartTime: "09:00",
	}, nil)
	require.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(t, handler.Book, "/appointments", service.BookAppointmentRequest{
		DoctorID: "d1", PatientID: "p1", Date: "2024-06-03", StartTime: "09:00",
	}, nil)
	require.Equal(t, http.StatusConflict, second.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "SLOT_UNAVAILABLE", envelope.Error.Code)
}

func TestAppointmentCancelUnknown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAppointmentFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/appointments/ghost/cancel", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Cancel(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
