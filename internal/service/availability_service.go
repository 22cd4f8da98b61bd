package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/models"
	"github.com/medikita/clinic-booking-api/internal/schedule"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

type doctorFinder interface {
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
}

type appointmentLister interface {
	ListActiveByDoctorAndDate(ctx context.Context, doctorID, date string) ([]models.Appointment, error)
}

type templateCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// TemplateCacheKey is the Redis key carrying a doctor's weekly slot template.
func TemplateCacheKey(doctorID string) string {
	return fmt.Sprintf("doctor:%s:template", doctorID)
}

// AvailabilityService resolves the free slots of a doctor on a calendar date:
// the weekly template entry for the date's weekday minus the start times of
// non-cancelled appointments already on the books.
type AvailabilityService struct {
	doctors      doctorFinder
	appointments appointmentLister
	cache        templateCache
	metrics      *MetricsService
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewAvailabilityService constructs the availability resolver.
func NewAvailabilityService(doctors doctorFinder, appointments appointmentLister, cache templateCache, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *AvailabilityService {
	if cacheTTL <= 0 {
		cacheTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		doctors:      doctors,
		appointments: appointments,
		cache:        cache,
		metrics:      metrics,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// FreeSlots returns the ordered free start times for a doctor on a date.
func (s *AvailabilityService) FreeSlots(ctx context.Context, doctorID, date string) ([]string, error) {
	return s.freeSlots(ctx, doctorID, date, "")
}

// FreeSlotsExcluding resolves free slots while ignoring one appointment,
// so a reschedule does not collide with the booking being moved.
func (s *AvailabilityService) FreeSlotsExcluding(ctx context.Context, doctorID, date, excludeAppointmentID string) ([]string, error) {
	return s.freeSlots(ctx, doctorID, date, excludeAppointmentID)
}

func (s *AvailabilityService) freeSlots(ctx context.Context, doctorID, date, excludeAppointmentID string) ([]string, error) {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return nil, err
	}

	template, err := s.loadTemplate(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	daySlots := template[schedule.WeekdayKey(day)]

	booked, err := s.appointments.ListActiveByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	taken := make(map[string]struct{}, len(booked))
	for _, appointment := range booked {
		if excludeAppointmentID != "" && appointment.ID == excludeAppointmentID {
			continue
		}
		taken[appointment.StartTime] = struct{}{}
	}

	// Template order is preserved; booked starts are simply filtered out.
	free := make([]string, 0, len(daySlots))
	for _, slot := range daySlots {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}

// InvalidateTemplate drops the cached template after a schedule update.
func (s *AvailabilityService) InvalidateTemplate(ctx context.Context, doctorID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, TemplateCacheKey(doctorID)); err != nil {
		s.logger.Warn("failed to invalidate template cache", zap.String("doctor_id", doctorID), zap.Error(err))
	}
}

func (s *AvailabilityService) loadTemplate(ctx context.Context, doctorID string) (models.WeeklySlotTemplate, error) {
	key := TemplateCacheKey(doctorID)

	if s.cache != nil {
		var cached models.WeeklySlotTemplate
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("template cache lookup failed", zap.String("doctor_id", doctorID), zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDoctorNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}
	if !doctor.Active {
		return nil, appErrors.Clone(appErrors.ErrDoctorNotFound, "doctor is no longer practicing")
	}

	template, err := doctor.WeeklySlotTemplate()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode slot template")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, template, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache template", zap.String("doctor_id", doctorID), zap.Error(err))
		}
	}

	return template, nil
}
