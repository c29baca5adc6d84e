package main

import (
	"log/slog"
	"net/http"

	"github.com/potholemap/potholemap/internal/board"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/pagesession"
	"github.com/potholemap/potholemap/internal/workflow"
)

const maxFormBytes = 16 << 10

type markerItem struct {
	Marker models.Marker
	// OOB marks the item for an out-of-band swap replacing the list entry of the same marker.
	OOB bool
}

type severityOption struct {
	Value    models.Severity
	Label    string
	Selected bool
}

// workflowView is the template data of the workflow panel.
type workflowView struct {
	Kind       string
	Marker     models.Marker
	Polling    bool
	ShowForm   bool
	Submitting bool
	Message    string
	Result     models.AnalysisResult
	Form       workflow.Form
	Severities []severityOption
	ReportID   string
	// SubmittedMarker refreshes the list entry of a marker that has just been reported.
	SubmittedMarker *markerItem
	// AlreadyReported is the marker a refused selection was about. It already has a report.
	AlreadyReported *models.Marker
}

// newWorkflowView builds the panel of page. With markerUpdate, a submitted marker's list entry is included for an
// out-of-band swap.
func newWorkflowView(page *pagesession.Page, markerUpdate bool) workflowView {
	state := page.Workflow.State()
	view := workflowView{ //nolint:exhaustruct // filled in per state below.
		Kind:   state.Kind().String(),
		Marker: state.Marker(),
	}
	switch s := state.(type) {
	case workflow.Analyzing:
		view.Polling = true
	case workflow.AnalysisPositive:
		view.Result = s.Result
	case workflow.AnalysisNegative:
		view.Result = s.Result
		view.Message = s.Message
	case workflow.AnalysisFailed:
		view.Message = s.Message
	case workflow.FormOpen:
		view.setForm(s.Result, s.Form)
	case workflow.SubmissionFailed:
		view.setForm(s.Result, s.Form)
	case workflow.Submitting:
		view.setForm(s.Result, s.Form)
		view.Polling = true
		view.Submitting = true
	case workflow.Submitted:
		view.Polling = true
		view.Message = s.Message
		view.ReportID = s.ReportID
		if markerUpdate {
			marker, err := page.Board.Get(s.Target.ID)
			if err != nil {
				marker = s.Target
			}
			view.SubmittedMarker = &markerItem{Marker: marker, OOB: true}
		}
	}
	return view
}

func (v *workflowView) setForm(result models.AnalysisResult, form workflow.Form) {
	v.ShowForm = true
	v.Result = result
	v.Form = form
	for _, severity := range models.Severities() {
		v.Severities = append(v.Severities, severityOption{
			Value:    severity,
			Label:    severity.Label(),
			Selected: severity == form.Report.Severity,
		})
	}
}

// respondWorkflow renders the workflow panel for htmx and sends other browsers back to the map, which shows the
// same panel.
func (app *application) respondWorkflow(w http.ResponseWriter, r *http.Request, status int) {
	app.respondWorkflowView(w, r, status, newWorkflowView(pageFromContext(r.Context()), true))
}

func (app *application) respondWorkflowView(w http.ResponseWriter, r *http.Request, status int, view workflowView) {
	if !app.isHxRequest(w, r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	app.renderPartial(w, r, status, "home", "workflow", view)
}

// transitionStatus maps errors of the workflow controller to the response status. Refused transitions still render
// the current panel.
func (app *application) transitionStatus(r *http.Request, err error) (int, bool) {
	var validationErr *models.ValidationError
	switch {
	case err == nil:
		return http.StatusOK, true
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, models.ErrAlreadySubmitted):
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "workflow transition refused", errors.SlogError(err))
		return http.StatusConflict, true
	default:
		return http.StatusInternalServerError, false
	}
}

func (app *application) selectMarker(w http.ResponseWriter, r *http.Request) {
	page := pageFromContext(r.Context())
	marker, err := page.Board.Get(r.PathValue("markerID"))
	if err != nil {
		if errors.Is(err, board.ErrMarkerNotFound) {
			app.notFound(w, r)
			return
		}
		app.serverError(w, r, err)
		return
	}

	err = page.Workflow.Select(marker)
	status, ok := app.transitionStatus(r, err)
	if !ok {
		app.serverError(w, r, errors.Wrap(err, "select marker", slog.String("marker_id", marker.ID)))
		return
	}
	view := newWorkflowView(page, true)
	if errors.Is(err, models.ErrAlreadySubmitted) {
		view.AlreadyReported = &marker
	}
	app.respondWorkflowView(w, r, status, view)
}

// workflowPanel renders the current panel. The panel polls it while a call is in flight.
func (app *application) workflowPanel(w http.ResponseWriter, r *http.Request) {
	app.respondWorkflow(w, r, http.StatusOK)
}

func (app *application) proceed(w http.ResponseWriter, r *http.Request) {
	page := pageFromContext(r.Context())
	err := page.Workflow.Proceed()
	status, ok := app.transitionStatus(r, err)
	if !ok {
		app.serverError(w, r, errors.Wrap(err, "proceed"))
		return
	}
	app.respondWorkflow(w, r, status)
}

func (app *application) submitReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}

	input := models.Report{
		Latitude:      0,
		Longitude:     0,
		Description:   r.PostForm.Get("description"),
		Severity:      models.Severity(r.PostForm.Get("severity")),
		ReporterName:  r.PostForm.Get("reporter_name"),
		ReporterEmail: r.PostForm.Get("reporter_email"),
		ReporterPhone: r.PostForm.Get("reporter_phone"),
	}
	page := pageFromContext(r.Context())
	err := page.Workflow.Submit(input)
	status, ok := app.transitionStatus(r, err)
	if !ok {
		app.serverError(w, r, errors.Wrap(err, "submit report"))
		return
	}
	app.respondWorkflow(w, r, status)
}

func (app *application) closeWorkflow(w http.ResponseWriter, r *http.Request) {
	page := pageFromContext(r.Context())
	err := page.Workflow.Close()
	status, ok := app.transitionStatus(r, err)
	if !ok {
		app.serverError(w, r, errors.Wrap(err, "close workflow"))
		return
	}
	app.respondWorkflow(w, r, status)
}
