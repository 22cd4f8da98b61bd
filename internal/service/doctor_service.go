package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/internal/schedule"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

type doctorRepository interface {
	List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, int, error)
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, doctor *models.Doctor) error
	Update(ctx context.Context, doctor *models.Doctor) error
	ReplaceSchedule(ctx context.Context, id string, availability, template types.JSONText, slotDuration int) error
	Deactivate(ctx context.Context, id string) error
}

type templateInvalidator interface {
	InvalidateTemplate(ctx context.Context, doctorID string)
}

// CreateDoctorRequest holds payload for registering a doctor.
type CreateDoctorRequest struct {
	Email        string                    `json:"email" validate:"required,email"`
	FullName     string                    `json:"full_name" validate:"required"`
	Phone        *string                   `json:"phone"`
	Specialty    *string                   `json:"specialty"`
	SlotDuration int                       `json:"slot_duration_minutes"`
	Availability models.WeeklyAvailability `json:"weekly_availability"`
}

// UpdateDoctorRequest holds payload for updating a doctor's profile.
// Schedule changes go through UpdateScheduleRequest instead.
type UpdateDoctorRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FullName  string  `json:"full_name" validate:"required"`
	Phone     *string `json:"phone"`
	Specialty *string `json:"specialty"`
	Active    bool    `json:"active"`
}

// UpdateScheduleRequest replaces a doctor's weekly availability and slot
// duration. The stored slot template is always regenerated in full.
type UpdateScheduleRequest struct {
	SlotDuration int                       `json:"slot_duration_minutes" validate:"required,gt=0"`
	Availability models.WeeklyAvailability `json:"weekly_availability" validate:"required"`
}

// DoctorService handles doctor use-cases.
type DoctorService struct {
	repo                doctorRepository
	invalidator         templateInvalidator
	validator           *validator.Validate
	defaultSlotDuration int
	logger              *zap.Logger
}

// NewDoctorService constructs the doctor service.
func NewDoctorService(repo doctorRepository, invalidator templateInvalidator, validate *validator.Validate, defaultSlotDuration int, logger *zap.Logger) *DoctorService {
	if validate == nil {
		validate = validator.New()
	}
	if defaultSlotDuration <= 0 {
		defaultSlotDuration = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoctorService{
		repo:                repo,
		invalidator:         invalidator,
		validator:           validate,
		defaultSlotDuration: defaultSlotDuration,
		logger:              logger,
	}
}

// List returns doctors and pagination metadata.
func (s *DoctorService) List(ctx context.Context, filter models.DoctorFilter) ([]models.Doctor, *models.Pagination, error) {
	doctors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list doctors")
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
	return doctors, pagination, nil
}

// Get returns one doctor.
func (s *DoctorService) Get(ctx context.Context, id string) (*models.Doctor, error) {
	doctor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDoctorNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	return doctor, nil
}

// Create registers a doctor and derives the initial slot template from the
// submitted availability. Malformed availability rejects the whole request;
// nothing is persisted.
func (s *DoctorService) Create(ctx context.Context, req CreateDoctorRequest) (*models.Doctor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid doctor payload")
	}

	duration := req.SlotDuration
	if duration <= 0 {
		duration = s.defaultSlotDuration
	}
	availability := req.Availability
	if availability == nil {
		availability = models.WeeklyAvailability{}
	}

	template, err := schedule.Generate(availability, duration)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	availabilityJSON, templateJSON, err := encodeSchedule(availability, template)
	if err != nil {
		return nil, err
	}

	doctor := &models.Doctor{
		Email:        req.Email,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Specialty:    req.Specialty,
		SlotDuration: duration,
		Availability: availabilityJSON,
		SlotTemplate: templateJSON,
		Active:       true,
	}
	if err := s.repo.Create(ctx, doctor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create doctor")
	}
	return doctor, nil
}

// Update modifies profile fields, leaving the stored schedule untouched.
func (s *DoctorService) Update(ctx context.Context, id string, req UpdateDoctorRequest) (*models.Doctor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid doctor payload")
	}

	doctor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	doctor.Email = req.Email
	doctor.FullName = req.FullName
	doctor.Phone = req.Phone
	doctor.Specialty = req.Specialty
	doctor.Active = req.Active
	if err := s.repo.Update(ctx, doctor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update doctor")
	}
	return doctor, nil
}

// UpdateSchedule swaps the doctor's availability and regenerates the slot
// template synchronously, so a schedule write can never leave a stale
// template behind. Existing appointments are untouched even when they no
// longer fall on a template slot.
func (s *DoctorService) UpdateSchedule(ctx context.Context, id string, req UpdateScheduleRequest) (*models.Doctor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	template, err := schedule.Generate(req.Availability, req.SlotDuration)
	if err != nil {
		return nil, err
	}

	availabilityJSON, templateJSON, err := encodeSchedule(req.Availability, template)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceSchedule(ctx, id, availabilityJSON, templateJSON, req.SlotDuration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDoctorNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateTemplate(ctx, id)
	}

	return s.Get(ctx, id)
}

// Deactivate soft-deletes a doctor and drops the cached template.
func (s *DoctorService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate doctor")
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateTemplate(ctx, id)
	}
	return nil
}

func encodeSchedule(availability models.WeeklyAvailability, template models.WeeklySlotTemplate) (types.JSONText, types.JSONText, error) {
	availabilityJSON, err := json.Marshal(availability)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode availability")
	}
	templateJSON, err := json.Marshal(template)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode slot template")
	}
	return types.JSONText(availabilityJSON), types.JSONText(templateJSON), nil
}
