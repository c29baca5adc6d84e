package repositories_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/repositories"
	"github.com/potholemap/potholemap/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestServiceRequestRepository(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewServiceRequestRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	want := models.ServiceRequest{
		ReportID: "311-1704449700000",
		Report: models.Report{
			Latitude:      40.7128,
			Longitude:     -74.006,
			Description:   "Large crack",
			Severity:      models.SeverityHigh,
			ReporterName:  "Jo",
			ReporterEmail: "jo@example.com",
			ReporterPhone: "",
		},
		Status:      models.StatusSubmitted,
		SubmittedAt: time.Date(2024, 1, 5, 10, 15, 0, 123_000_000, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, want))

	got, err := repo.Get(ctx, want.ReportID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	status := got.ReportStatus()
	require.Equal(t, models.EstimatedResolution, status.EstimatedResolution)
	require.Equal(t, models.SeverityHigh, status.Severity)

	err = repo.Create(ctx, want)
	require.ErrorIs(t, err, repositories.ErrDuplicate)

	_, err = repo.Get(ctx, "311-missing")
	require.ErrorIs(t, err, repositories.ErrNotFound)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestServiceRequestRepository_databaseErrors(t *testing.T) {
	ctx := context.Background()
	dbs, mock := newMockDB(t)
	repo := repositories.NewServiceRequestRepository(dbs, testhelpers.NewLogger(io.Discard))
	dbErr := errors.New("disk I/O error")

	mock.ExpectExec("INSERT INTO service_requests").WillReturnError(dbErr)
	err := repo.Create(ctx, models.ServiceRequest{
		ReportID:    "311-1",
		Report:      models.Report{Latitude: 1, Longitude: 1, Description: "x", Severity: models.SeverityLow},
		Status:      "",
		SubmittedAt: time.Now(),
	})
	require.ErrorIs(t, err, dbErr)
	require.NotErrorIs(t, err, repositories.ErrDuplicate)

	mock.ExpectQuery("SELECT (.+) FROM service_requests").WillReturnError(dbErr)
	_, err = repo.Get(ctx, "311-1")
	require.ErrorIs(t, err, dbErr)

	mock.ExpectQuery("SELECT (.+) FROM service_requests").
		WillReturnRows(sqlmock.NewRows([]string{
			"report_id", "latitude", "longitude", "description", "severity", "reporter_name", "reporter_email",
			"reporter_phone", "status", "submitted_at",
		}).AddRow("311-1", 1.0, 1.0, "x", "low", "", "", "", "submitted", "last tuesday"))
	_, err = repo.Get(ctx, "311-1")
	require.Error(t, err, "unparseable timestamp")

	require.NoError(t, mock.ExpectationsWereMet())
}
