package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

type fakeDoctorRepo struct {
	mu      sync.Mutex
	doctors map[string]*models.Doctor
	nextID  int
}

func newFakeDoctorRepo() *fakeDoctorRepo {
	return &fakeDoctorRepo{doctors: make(map[string]*models.Doctor)}
}

func (f *fakeDoctorRepo) List(_ context.Context, _ models.DoctorFilter) ([]models.Doctor, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Doctor
	for _, d := range f.doctors {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (f *fakeDoctorRepo) FindByID(_ context.Context, id string) (*models.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *d
	return &clone, nil
}

func (f *fakeDoctorRepo) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.doctors {
		if d.Email == email && d.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDoctorRepo) Create(_ context.Context, doctor *models.Doctor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doctor.ID = "doc-" + string(rune('0'+f.nextID))
	clone := *doctor
	f.doctors[doctor.ID] = &clone
	return nil
}

func (f *fakeDoctorRepo) Update(_ context.Context, doctor *models.Doctor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.doctors[doctor.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *doctor
	f.doctors[doctor.ID] = &clone
	return nil
}

func (f *fakeDoctorRepo) ReplaceSchedule(_ context.Context, id string, availability, template types.JSONText, slotDuration int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Availability = availability
	d.SlotTemplate = template
	d.SlotDuration = slotDuration
	return nil
}

func (f *fakeDoctorRepo) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Active = false
	return nil
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) InvalidateTemplate(_ context.Context, doctorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, doctorID)
}

func TestDoctorCreateDerivesTemplate(t *testing.T) {
	repo := newFakeDoctorRepo()
	svc := NewDoctorService(repo, nil, nil, 30, nil)

	doctor, err := svc.Create(context.Background(), CreateDoctorRequest{
		Email:        "sari@clinic.test",
		FullName:     "Dr. Sari",
		SlotDuration: 30,
		Availability: models.WeeklyAvailability{"mon": {{Start: "09:00", End: "10:00"}}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doctor.ID)

	template, err := doctor.WeeklySlotTemplate()
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30"}, template["mon"])
	assert.Empty(t, template["sun"])
}

func TestDoctorCreateRejectsMalformedAvailability(t *testing.T) {
	repo := newFakeDoctorRepo()
	svc := NewDoctorService(repo, nil, nil, 30, nil)

	_, err := svc.Create(context.Background(), CreateDoctorRequest{
		Email:        "sari@clinic.test",
		FullName:     "Dr. Sari",
		SlotDuration: 30,
		Availability: models.WeeklyAvailability{"monday": {{Start: "09:00", End: "10:00"}}},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMalformedAvailability))
	assert.Empty(t, repo.doctors, "nothing may persist when availability is rejected")
}

func TestDoctorCreateDuplicateEmail(t *testing.T) {
	repo := newFakeDoctorRepo()
	svc := NewDoctorService(repo, nil, nil, 30, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateDoctorRequest{Email: "sari@clinic.test", FullName: "Dr. Sari"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateDoctorRequest{Email: "sari@clinic.test", FullName: "Dr. Sari II"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestUpdateScheduleRegeneratesTemplateAndInvalidatesCache(t *testing.T) {
	repo := newFakeDoctorRepo()
	invalidator := &recordingInvalidator{}
	svc := NewDoctorService(repo, invalidator, nil, 30, nil)
	ctx := context.Background()

	doctor, err := svc.Create(ctx, CreateDoctorRequest{
		Email:        "sari@clinic.test",
		FullName:     "Dr. Sari",
		SlotDuration: 30,
		Availability: models.WeeklyAvailability{"mon": {{Start: "09:00", End: "10:00"}}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateSchedule(ctx, doctor.ID, UpdateScheduleRequest{
		SlotDuration: 20,
		Availability: models.WeeklyAvailability{"tue": {{Start: "13:00", End: "14:00"}}},
	})
	require.NoError(t, err)

	template, err := updated.WeeklySlotTemplate()
	require.NoError(t, err)
	assert.Empty(t, template["mon"], "old schedule must be fully replaced")
	assert.Equal(t, []string{"13:00", "13:20", "13:40"}, template["tue"])
	assert.Equal(t, 20, updated.SlotDuration)
	assert.Equal(t, []string{doctor.ID}, invalidator.ids)
}

func TestUpdateScheduleUnknownDoctor(t *testing.T) {
	repo := newFakeDoctorRepo()
	svc := NewDoctorService(repo, nil, nil, 30, nil)

	_, err := svc.UpdateSchedule(context.Background(), "ghost", UpdateScheduleRequest{
		SlotDuration: 30,
		Availability: models.WeeklyAvailability{"mon": {{Start: "09:00", End: "10:00"}}},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDoctorNotFound))
}

func TestDoctorDeactivateInvalidatesCache(t *testing.T) {
	repo := newFakeDoctorRepo()
	invalidator := &recordingInvalidator{}
	svc := NewDoctorService(repo, invalidator, nil, 30, nil)
	ctx := context.Background()

	doctor, err := svc.Create(ctx, CreateDoctorRequest{Email: "sari@clinic.test", FullName: "Dr. Sari"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, doctor.ID))
	assert.False(t, repo.doctors[doctor.ID].Active)
	assert.Equal(t, []string{doctor.ID}, invalidator.ids)
}
