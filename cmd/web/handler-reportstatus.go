package main

import (
	"log/slog"
	"net/http"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/potholeapi"
)

type statusTemplateData struct {
	BaseTemplateData
	Status models.ReportStatus
}

// reportStatus shows the processing state of a submitted report as tracked by the 311 service.
func (app *application) reportStatus(w http.ResponseWriter, r *http.Request) {
	reportID := r.PathValue("reportID")
	status, err := app.reports.ReportStatus(r.Context(), reportID)
	if err != nil {
		var remoteErr *potholeapi.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			app.renderError(w, r, http.StatusNotFound, "No report with ID "+reportID+" was found.")
			return
		}
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "report status lookup failed", errors.SlogError(err))
		app.renderError(w, r, http.StatusBadGateway, "The 311 service could not be reached. Please try again.")
		return
	}

	app.render(w, r, http.StatusOK, "status", statusTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Status:           status,
	})
}
