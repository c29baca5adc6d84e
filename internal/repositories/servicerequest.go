package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/sqlite"
)

var (
	ErrNotFound  = errors.NewSentinel("not found")
	ErrDuplicate = errors.NewSentinel("duplicate")
)

const timeLayout = "2006-01-02T15:04:05.000Z"

type ServiceRequestRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewServiceRequestRepository(dbs *sqlite.Database, logger *slog.Logger) *ServiceRequestRepository {
	return &ServiceRequestRepository{
		dbs:    dbs,
		logger: logger.With("source", "ServiceRequestRepository"),
	}
}

type serviceRequestRow struct {
	ReportID      string  `db:"report_id"`
	Latitude      float64 `db:"latitude"`
	Longitude     float64 `db:"longitude"`
	Description   string  `db:"description"`
	Severity      string  `db:"severity"`
	ReporterName  string  `db:"reporter_name"`
	ReporterEmail string  `db:"reporter_email"`
	ReporterPhone string  `db:"reporter_phone"`
	Status        string  `db:"status"`
	SubmittedAt   string  `db:"submitted_at"`
}

// Create stores an accepted service request. A report ID can be stored only once.
func (r *ServiceRequestRepository) Create(ctx context.Context, req models.ServiceRequest) error {
	row := serviceRequestRow{
		ReportID:      req.ReportID,
		Latitude:      req.Report.Latitude,
		Longitude:     req.Report.Longitude,
		Description:   req.Report.Description,
		Severity:      string(req.Report.Severity),
		ReporterName:  req.Report.ReporterName,
		ReporterEmail: req.Report.ReporterEmail,
		ReporterPhone: req.Report.ReporterPhone,
		Status:        req.Status,
		SubmittedAt:   req.SubmittedAt.UTC().Format(timeLayout),
	}
	if row.Status == "" {
		row.Status = models.StatusSubmitted
	}

	stmt := `INSERT INTO service_requests (report_id, latitude, longitude, description, severity,
                              reporter_name, reporter_email, reporter_phone, status, submitted_at)
VALUES (:report_id, :latitude, :longitude, :description, :severity,
        :reporter_name, :reporter_email, :reporter_phone, :status, :submitted_at)`
	if _, err := r.dbs.ReadWrite.NamedExecContext(ctx, stmt, row); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return errors.Wrap(ErrDuplicate, "insert service request", slog.String("report_id", req.ReportID))
		}
		return errors.Wrap(err, "insert service request", slog.String("report_id", req.ReportID))
	}
	return nil
}

// Get returns the service request with the given report ID.
func (r *ServiceRequestRepository) Get(ctx context.Context, reportID string) (models.ServiceRequest, error) {
	var row serviceRequestRow
	stmt := `SELECT report_id, latitude, longitude, description, severity, reporter_name, reporter_email,
       reporter_phone, status, submitted_at
FROM service_requests
WHERE report_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, reportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ServiceRequest{}, errors.Wrap(ErrNotFound, "get service request",
				slog.String("report_id", reportID))
		}
		return models.ServiceRequest{}, errors.Wrap(err, "get service request", slog.String("report_id", reportID))
	}

	submittedAt, err := time.Parse(timeLayout, row.SubmittedAt)
	if err != nil {
		return models.ServiceRequest{}, errors.Wrap(err, "parse submitted_at", slog.String("value", row.SubmittedAt))
	}
	return models.ServiceRequest{
		ReportID: row.ReportID,
		Report: models.Report{
			Latitude:      row.Latitude,
			Longitude:     row.Longitude,
			Description:   row.Description,
			Severity:      models.Severity(row.Severity),
			ReporterName:  row.ReporterName,
			ReporterEmail: row.ReporterEmail,
			ReporterPhone: row.ReporterPhone,
		},
		Status:      row.Status,
		SubmittedAt: submittedAt,
	}, nil
}

// Count returns the number of stored service requests.
func (r *ServiceRequestRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.dbs.ReadOnly.GetContext(ctx, &count, `SELECT count(*) FROM service_requests`); err != nil {
		return 0, errors.Wrap(err, "count service requests")
	}
	return count, nil
}
