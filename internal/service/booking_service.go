package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/internal/schedule"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

type appointmentRepository interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, appointment *models.Appointment) error
	Move(ctx context.Context, appointment *models.Appointment) error
	UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error
	UpdateReason(ctx context.Context, id string, reason *string) error
}

type patientFinder interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

type slotResolver interface {
	FreeSlots(ctx context.Context, doctorID, date string) ([]string, error)
	FreeSlotsExcluding(ctx context.Context, doctorID, date, excludeAppointmentID string) ([]string, error)
}

type eventPublisher interface {
	Publish(event models.AppointmentEvent)
}

// BookAppointmentRequest holds payload for booking a slot. EndTime overrides
// the derived start+duration end when set, for visits that run long.
type BookAppointmentRequest struct {
	DoctorID  string  `json:"doctor_id" validate:"required"`
	PatientID string  `json:"patient_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason"`
}

// RescheduleAppointmentRequest holds payload for moving an appointment.
type RescheduleAppointmentRequest struct {
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason"`
}

// BookingService owns the appointment lifecycle. Booking runs a two-layer
// guard: the free-slot precheck rejects requests for slots that are already
// taken or outside the doctor's template (SLOT_UNAVAILABLE), and the
// database's partial unique index settles races between writes that passed
// the precheck simultaneously (BOOKING_CONFLICT).
type BookingService struct {
	appointments appointmentRepository
	doctors      doctorFinder
	patients     patientFinder
	availability slotResolver
	events       eventPublisher
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewBookingService constructs the booking service.
func NewBookingService(appointments appointmentRepository, doctors doctorFinder, patients patientFinder, availability slotResolver, events eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		appointments: appointments,
		doctors:      doctors,
		patients:     patients,
		availability: availability,
		events:       events,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// List returns appointments and pagination metadata.
func (s *BookingService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	appointments, total, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return appointments, pagination, nil
}

// Get returns one appointment.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appointment, nil
}

// Book claims a slot for a patient.
func (s *BookingService) Book(ctx context.Context, req BookAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	if _, err := schedule.ParseClock(req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTime, "")
	}

	doctor, err := s.loadDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	patient, err := s.loadPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	free, err := s.availability.FreeSlots(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	if !contains(free, req.StartTime) {
		s.metrics.RecordBookingAttempt(BookingOutcomeUnavailable)
		return nil, appErrors.ErrSlotUnavailable
	}

	endTime, err := resolveEndTime(req.StartTime, req.EndTime, doctor.SlotDuration)
	if err != nil {
		return nil, err
	}

	appointment := &models.Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   endTime,
		Status:    models.AppointmentScheduled,
		Reason:    req.Reason,
	}
	if err := s.appointments.Create(ctx, appointment); err != nil {
		if appErrors.Is(err, appErrors.ErrBookingConflict) {
			s.metrics.RecordBookingAttempt(BookingOutcomeConflict)
			return nil, err
		}
		s.metrics.RecordBookingAttempt(BookingOutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}

	s.metrics.RecordBookingAttempt(BookingOutcomeConfirmed)
	s.publish(models.EventAppointmentCreated, appointment, doctor, patient)
	return appointment, nil
}

// Reschedule moves an appointment to a new date or start time. The booking
// being moved does not count against its own target slot.
func (s *BookingService) Reschedule(ctx context.Context, id string, req RescheduleAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	if _, err := schedule.ParseClock(req.StartTime); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTime, "")
	}

	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status == models.AppointmentCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cancelled appointments cannot be rescheduled")
	}

	doctor, err := s.loadDoctor(ctx, appointment.DoctorID)
	if err != nil {
		return nil, err
	}

	free, err := s.availability.FreeSlotsExcluding(ctx, appointment.DoctorID, req.Date, appointment.ID)
	if err != nil {
		return nil, err
	}
	if !contains(free, req.StartTime) {
		s.metrics.RecordBookingAttempt(BookingOutcomeUnavailable)
		return nil, appErrors.ErrSlotUnavailable
	}

	endTime, err := resolveEndTime(req.StartTime, req.EndTime, doctor.SlotDuration)
	if err != nil {
		return nil, err
	}

	appointment.Date = req.Date
	appointment.StartTime = req.StartTime
	appointment.EndTime = endTime
	if req.Reason != nil {
		appointment.Reason = req.Reason
	}
	if err := s.appointments.Move(ctx, appointment); err != nil {
		if appErrors.Is(err, appErrors.ErrBookingConflict) {
			s.metrics.RecordBookingAttempt(BookingOutcomeConflict)
			return nil, err
		}
		s.metrics.RecordBookingAttempt(BookingOutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule appointment")
	}

	s.metrics.RecordBookingAttempt(BookingOutcomeConfirmed)
	s.publishForIDs(models.EventAppointmentUpdated, appointment, doctor)
	return appointment, nil
}

// Cancel releases an appointment's slot. Cancelling an already cancelled
// appointment is a no-op.
func (s *BookingService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status == models.AppointmentCancelled {
		return appointment, nil
	}

	if err := s.appointments.UpdateStatus(ctx, id, models.AppointmentCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	appointment.Status = models.AppointmentCancelled

	s.publishForIDs(models.EventAppointmentCancelled, appointment, nil)
	return appointment, nil
}

// Complete marks a scheduled appointment as completed. Completed appointments
// keep their slot occupied.
func (s *BookingService) Complete(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appointment.Status != models.AppointmentScheduled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only scheduled appointments can be completed")
	}

	if err := s.appointments.UpdateStatus(ctx, id, models.AppointmentCompleted); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete appointment")
	}
	appointment.Status = models.AppointmentCompleted
	return appointment, nil
}

// UpdateReason replaces the visit reason without touching the slot.
func (s *BookingService) UpdateReason(ctx context.Context, id string, reason *string) (*models.Appointment, error) {
	appointment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateReason(ctx, id, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}
	appointment.Reason = reason
	return appointment, nil
}

func (s *BookingService) loadDoctor(ctx context.Context, id string) (*models.Doctor, error) {
	doctor, err := s.doctors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDoctorNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	if !doctor.Active {
		return nil, appErrors.Clone(appErrors.ErrDoctorNotFound, "doctor is no longer practicing")
	}
	return doctor, nil
}

func (s *BookingService) loadPatient(ctx context.Context, id string) (*models.Patient, error) {
	patient, err := s.patients.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPatientNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	if !patient.Active {
		return nil, appErrors.Clone(appErrors.ErrPatientNotFound, "patient record is inactive")
	}
	return patient, nil
}

func (s *BookingService) publish(eventType models.AppointmentEventType, appointment *models.Appointment, doctor *models.Doctor, patient *models.Patient) {
	if s.events == nil {
		return
	}
	event := models.AppointmentEvent{
		Type:          eventType,
		AppointmentID: appointment.ID,
		Date:          appointment.Date,
		StartTime:     appointment.StartTime,
		EndTime:       appointment.EndTime,
	}
	if doctor != nil {
		event.DoctorName = doctor.FullName
		event.DoctorEmail = doctor.Email
	}
	if patient != nil {
		event.PatientName = patient.FullName
		event.PatientEmail = patient.Email
	}
	s.events.Publish(event)
}

// publishForIDs looks the participants up before publishing. Lookups are best
// effort: the state change has already committed, so a failed load only means
// a thinner notice.
func (s *BookingService) publishForIDs(eventType models.AppointmentEventType, appointment *models.Appointment, doctor *models.Doctor) {
	if s.events == nil {
		return
	}
	if doctor == nil {
		if d, err := s.doctors.FindByID(context.Background(), appointment.DoctorID); err == nil {
			doctor = d
		} else {
			s.logger.Warn("failed to load doctor for notification", zap.String("appointment_id", appointment.ID), zap.Error(err))
		}
	}
	var patient *models.Patient
	if p, err := s.patients.FindByID(context.Background(), appointment.PatientID); err == nil {
		patient = p
	} else {
		s.logger.Warn("failed to load patient for notification", zap.String("appointment_id", appointment.ID), zap.Error(err))
	}
	s.publish(eventType, appointment, doctor, patient)
}

// resolveEndTime prefers an explicit end over the derived start+duration one.
// An explicit end must be a valid clock time after the start.
func resolveEndTime(start string, override *string, duration int) (string, error) {
	if override == nil {
		return schedule.EndTime(start, duration)
	}
	endMinutes, err := schedule.ParseClock(*override)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidTime, "")
	}
	startMinutes, err := schedule.ParseClock(start)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidTime, "")
	}
	if endMinutes <= startMinutes {
		return "", appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}
	return *override, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
