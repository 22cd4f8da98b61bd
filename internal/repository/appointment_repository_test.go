package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medikita/clinic-booking-api/internal/models"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
)

func newAppointmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func appointmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "doctor_id", "patient_id", "date", "start_time", "end_time", "status", "reason", "created_at", "updated_at"})
}

func TestAppointmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	rows := appointmentRows().
		AddRow("a1", "d1", "p1", "2024-06-03", "09:00", "09:30", "scheduled", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, doctor_id, patient_id, date, start_time, end_time, status, reason, created_at, updated_at FROM appointments WHERE 1=1 AND doctor_id = $1 ORDER BY date ASC, start_time ASC LIMIT 20 OFFSET 0")).
		WithArgs("d1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments WHERE 1=1 AND doctor_id = $1")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	appointments, total, err := repo.List(context.Background(), models.AppointmentFilter{DoctorID: "d1"})
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListActiveByDoctorAndDate(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	rows := appointmentRows().
		AddRow("a1", "d1", "p1", "2024-06-03", "09:00", "09:30", "scheduled", nil, time.Now(), time.Now()).
		AddRow("a2", "d1", "p2", "2024-06-03", "10:00", "10:30", "completed", nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, doctor_id, patient_id, date, start_time, end_time, status, reason, created_at, updated_at FROM appointments WHERE doctor_id = $1 AND date = $2 AND status <> $3 ORDER BY start_time ASC")).
		WithArgs("d1", "2024-06-03", models.AppointmentCancelled).
		WillReturnRows(rows)

	appointments, err := repo.ListActiveByDoctorAndDate(context.Background(), "d1", "2024-06-03")
	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, "09:00", appointments[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	appointment := &models.Appointment{
		DoctorID:  "d1",
		PatientID: "p1",
		Date:      "2024-06-03",
		StartTime: "09:00",
		EndTime:   "09:30",
		Status:    models.AppointmentScheduled,
	}
	err := repo.Create(context.Background(), appointment)
	require.NoError(t, err)
	assert.NotEmpty(t, appointment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreateUniqueViolationIsBookingConflict(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "appointments_active_slot_idx"})

	err := repo.Create(context.Background(), &models.Appointment{
		DoctorID:  "d1",
		PatientID: "p1",
		Date:      "2024-06-03",
		StartTime: "09:00",
		EndTime:   "09:30",
		Status:    models.AppointmentScheduled,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBookingConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryMoveUniqueViolationIsBookingConflict(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("UPDATE appointments SET date").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "appointments_active_slot_idx"})

	err := repo.Move(context.Background(), &models.Appointment{
		ID:        "a1",
		Date:      "2024-06-04",
		StartTime: "10:00",
		EndTime:   "10:30",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrBookingConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("a1", models.AppointmentCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "a1", models.AppointmentCancelled)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
