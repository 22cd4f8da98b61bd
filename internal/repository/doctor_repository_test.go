package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
)

func newDoctorMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDoctorRepositoryList(t *testing.T) {
	db, mock, cleanup := newDoctorMock(t)
	defer cleanup()
	repo := NewDoctorRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "specialty", "slot_duration_minutes", "weekly_availability", "weekly_slot_template", "active", "created_at", "updated_at"}).
		AddRow("d1", "doc@clinic.test", "Dr. Sari", nil, "dermatology", 30, []byte(`{}`), []byte(`{}`), true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, full_name, phone, specialty, slot_duration_minutes, weekly_availability, weekly_slot_template, active, created_at, updated_at FROM doctors WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM doctors WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	doctors, total, err := repo.List(context.Background(), models.DoctorFilter{})
	require.NoError(t, err)
	assert.Len(t, doctors, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newDoctorMock(t)
	defer cleanup()
	repo := NewDoctorRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "phone", "specialty", "slot_duration_minutes", "weekly_availability", "weekly_slot_template", "active", "created_at", "updated_at"}).
		AddRow("d1", "doc@clinic.test", "Dr. Sari", nil, nil, 30, []byte(`{"mon":[{"start":"09:00","end":"12:00"}]}`), []byte(`{"mon":["09:00"]}`), true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .+ FROM doctors WHERE id").
		WithArgs("d1").
		WillReturnRows(rows)

	doctor, err := repo.FindByID(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Sari", doctor.FullName)

	availability, err := doctor.WeeklyAvailability()
	require.NoError(t, err)
	assert.Equal(t, "09:00", availability["mon"][0].Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newDoctorMock(t)
	defer cleanup()
	repo := NewDoctorRepository(db)

	mock.ExpectExec("INSERT INTO doctors").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doctor := &models.Doctor{
		Email:        "doc@clinic.test",
		FullName:     "Dr. Sari",
		SlotDuration: 30,
		Availability: types.JSONText(`{}`),
		SlotTemplate: types.JSONText(`{}`),
		Active:       true,
	}
	err := repo.Create(context.Background(), doctor)
	require.NoError(t, err)
	assert.NotEmpty(t, doctor.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepositoryReplaceSchedule(t *testing.T) {
	db, mock, cleanup := newDoctorMock(t)
	defer cleanup()
	repo := NewDoctorRepository(db)

	mock.ExpectExec("UPDATE doctors SET weekly_availability").
		WithArgs("d1", sqlmock.AnyArg(), sqlmock.AnyArg(), 45, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReplaceSchedule(context.Background(), "d1", types.JSONText(`{}`), types.JSONText(`{}`), 45)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDoctorRepositoryReplaceScheduleMissingDoctor(t *testing.T) {
	db, mock, cleanup := newDoctorMock(t)
	defer cleanup()
	repo := NewDoctorRepository(db)

	mock.ExpectExec("UPDATE doctors SET weekly_availability").
		WithArgs("missing", sqlmock.AnyArg(), sqlmock.AnyArg(), 30, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReplaceSchedule(context.Background(), "missing", types.JSONText(`{}`), types.JSONText(`{}`), 30)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
