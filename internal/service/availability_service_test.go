package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

// fakeTemplateCache is an in-memory stand-in for the Redis cache repository.
type fakeTemplateCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newFakeTemplateCache() *fakeTemplateCache {
	return &fakeTemplateCache{entries: make(map[string][]byte)}
}

func (c *fakeTemplateCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *fakeTemplateCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeTemplateCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func newAvailabilityFixture(t *testing.T) (*AvailabilityService, *fakeAppointmentStore, *fakeTemplateCache) {
	t.Helper()
	doctors := &fakeDoctorStore{doctors: map[string]*models.Doctor{"d1": testDoctor(t, "d1")}}
	store := newFakeAppointmentStore()
	cache := newFakeTemplateCache()
	svc := NewAvailabilityService(doctors, store, cache, nil, time.Hour, nil)
	return svc, store, cache
}

func TestFreeSlotsReturnsTemplateWhenNothingBooked(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)

	free, err := svc.FreeSlots(context.Background(), "d1", testMonday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, free)
}

func TestFreeSlotsFiltersBookedStartsPreservingOrder(t *testing.T) {
	svc, store, _ := newAvailabilityFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.Appointment{
		DoctorID: "d1", PatientID: "p1", Date: testMonday,
		StartTime: "09:00", EndTime: "09:30", Status: models.AppointmentScheduled,
	}))
	require.NoError(t, store.Create(ctx, &models.Appointment{
		DoctorID: "d1", PatientID: "p2", Date: testMonday,
		StartTime: "10:00", EndTime: "10:30", Status: models.AppointmentScheduled,
	}))

	free, err := svc.FreeSlots(ctx, "d1", testMonday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30", "10:30"}, free)
}

func TestFreeSlotsIgnoresCancelledAppointments(t *testing.T) {
	svc, store, _ := newAvailabilityFixture(t)
	ctx := context.Background()

	appointment := &models.Appointment{
		DoctorID: "d1", PatientID: "p1", Date: testMonday,
		StartTime: "09:00", EndTime: "09:30", Status: models.AppointmentScheduled,
	}
	require.NoError(t, store.Create(ctx, appointment))
	require.NoError(t, store.UpdateStatus(ctx, appointment.ID, models.AppointmentCancelled))

	free, err := svc.FreeSlots(ctx, "d1", testMonday)
	require.NoError(t, err)
	assert.Contains(t, free, "09:00")
}

func TestFreeSlotsEmptyDayYieldsEmptySet(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)

	// 2024-06-04 is a Tuesday; the test doctor only works Mondays.
	free, err := svc.FreeSlots(context.Background(), "d1", "2024-06-04")
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestFreeSlotsUnknownDoctor(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)

	_, err := svc.FreeSlots(context.Background(), "ghost", testMonday)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDoctorNotFound))
}

func TestFreeSlotsInvalidDate(t *testing.T) {
	svc, _, _ := newAvailabilityFixture(t)

	_, err := svc.FreeSlots(context.Background(), "d1", "June 3rd")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDate))
}

func TestFreeSlotsPopulatesAndReusesCache(t *testing.T) {
	svc, _, cache := newAvailabilityFixture(t)
	ctx := context.Background()

	_, err := svc.FreeSlots(ctx, "d1", testMonday)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Contains(t, cache.entries, TemplateCacheKey("d1"))

	_, err = svc.FreeSlots(ctx, "d1", testMonday)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
}

func TestInvalidateTemplateDropsCacheEntry(t *testing.T) {
	svc, _, cache := newAvailabilityFixture(t)
	ctx := context.Background()

	_, err := svc.FreeSlots(ctx, "d1", testMonday)
	require.NoError(t, err)
	require.Contains(t, cache.entries, TemplateCacheKey("d1"))

	svc.InvalidateTemplate(ctx, "d1")
	assert.NotContains(t, cache.entries, TemplateCacheKey("d1"))
}
