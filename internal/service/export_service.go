package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/medikita/clinic-booking-api/internal/schedule"
	appErrors "github.com/medikita/clinic-booking-api/pkg/errors"
	"github.com/medikita/clinic-booking-api/pkg/export"
)

// Export formats supported by the day sheet endpoint.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportResult carries a rendered document and its metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders printable day sheets for the front desk: every
// non-cancelled appointment of one doctor on one date, in start-time order.
type ExportService struct {
	doctors      doctorFinder
	appointments appointmentLister
	patients     patientFinder
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	logger       *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(doctors doctorFinder, appointments appointmentLister, patients patientFinder, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		doctors:      doctors,
		appointments: appointments,
		patients:     patients,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		logger:       logger,
	}
}

// DaySheet renders the doctor's schedule for one date in the requested format.
func (s *ExportService) DaySheet(ctx context.Context, doctorID, date, format string) (*ExportResult, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return nil, err
	}

	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrDoctorNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}

	appointments, err := s.appointments.ListActiveByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	dataset := export.Dataset{
		Headers: []string{"Start", "End", "Patient", "Status", "Reason"},
		Rows:    make([]map[string]string, 0, len(appointments)),
	}
	for _, appointment := range appointments {
		row := map[string]string{
			"Start":  appointment.StartTime,
			"End":    appointment.EndTime,
			"Status": string(appointment.Status),
		}
		if appointment.Reason != nil {
			row["Reason"] = *appointment.Reason
		}
		if patient, err := s.patients.FindByID(ctx, appointment.PatientID); err == nil {
			row["Patient"] = patient.FullName
		} else {
			s.logger.Warn("failed to resolve patient for day sheet",
				zap.String("appointment_id", appointment.ID), zap.Error(err))
			row["Patient"] = appointment.PatientID
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	filename := fmt.Sprintf("day-sheet-%s-%s.%s", doctor.ID, date, format)
	if format == ExportFormatCSV {
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: filename}, nil
	}

	title := fmt.Sprintf("Day sheet - %s", doctor.FullName)
	content, err := s.pdf.Render(dataset, title, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &ExportResult{Content: content, ContentType: "application/pdf", Filename: filename}, nil
}
