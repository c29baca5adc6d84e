package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/logging"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/repositories"
)

const (
	maxServiceRequestBytes = 64 << 10
	maxReportIDAttempts    = 5
)

// createServiceRequest simulates the city's 311 service: it validates the report, takes a moment to process it and
// stores it under a new report ID.
func (app *application) createServiceRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxServiceRequestBytes)

	var report models.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		app.writeJSON(w, r, http.StatusBadRequest, models.SubmissionResult{
			Success:  false,
			ReportID: "",
			Message:  "Invalid report payload.",
			Error:    err.Error(),
		})
		return
	}
	report = report.Normalize()
	if err := report.Validate(); err != nil {
		var validationErr *models.ValidationError
		message := err.Error()
		if errors.As(err, &validationErr) {
			message = validationErr.Message
		}
		app.writeJSON(w, r, http.StatusUnprocessableEntity, models.SubmissionResult{
			Success:  false,
			ReportID: "",
			Message:  message,
			Error:    "validation failed",
		})
		return
	}

	select {
	case <-ctx.Done():
		app.logger.LogAttrs(ctx, slog.LevelDebug, "service request abandoned", errors.SlogError(ctx.Err()))
		return
	case <-time.After(app.sim311Delay):
	}

	request := models.ServiceRequest{
		ReportID:    "",
		Report:      report,
		Status:      models.StatusSubmitted,
		SubmittedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	var err error
	for attempt := range maxReportIDAttempts {
		request.ReportID = "311-" + strconv.FormatInt(request.SubmittedAt.UnixMilli()+int64(attempt), 10)
		if err = app.serviceRequests.Create(ctx, request); !errors.Is(err, repositories.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "failed to store service request", errors.SlogError(err))
		app.writeJSON(w, r, http.StatusInternalServerError, models.SubmissionResult{
			Success:  false,
			ReportID: "",
			Message:  "The 311 service could not store the report.",
			Error:    "internal error",
		})
		return
	}

	ctx = logging.WithAttrs(ctx, slog.String("report_id", request.ReportID))
	app.logger.LogAttrs(ctx, slog.LevelInfo, "service request created",
		slog.String("severity", string(report.Severity)), slog.String("location", report.Position().String()))
	app.writeJSON(w, r, http.StatusCreated, models.SubmissionResult{
		Success:  true,
		ReportID: request.ReportID,
		Message: fmt.Sprintf("Report submitted successfully! Report ID: %s. Estimated resolution: %s",
			request.ReportID, models.EstimatedResolution),
		Error: "",
	})
}

// serviceRequestStatus answers status lookups of the simulated 311 service.
func (app *application) serviceRequestStatus(w http.ResponseWriter, r *http.Request) {
	reportID := r.PathValue("reportID")
	request, err := app.serviceRequests.Get(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "report not found"})
			return
		}
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, request.ReportStatus())
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal JSON"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
