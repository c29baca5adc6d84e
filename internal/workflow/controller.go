// Package workflow implements the report workflow of one browser session: analyze the selected marker, open the
// report form on a positive detection and submit the report to the 311 service.
//
// Network calls run in goroutines. Each call carries a [Ticket] and its completion is applied only if the
// workflow still waits for that ticket, so a late answer for an abandoned marker never reaches the new one.
package workflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
)

var (
	// ErrBusy is returned while a submission is in flight. Submissions cannot be abandoned.
	ErrBusy              = errors.NewSentinel("workflow busy submitting")
	ErrInvalidTransition = errors.NewSentinel("invalid workflow transition")
)

// User-visible messages.
const (
	MessageNoPothole    = "No pothole detected at this location. Please verify the location and try again."
	MessageUnverified   = "Unable to verify pothole at this location."
	MessageAnalyzeError = "Failed to analyze location. Please try again."
	MessageSubmitFailed = "Failed to submit report. Please try again."
)

// DefaultCloseDelay is how long a successful submission stays visible before the workflow closes itself.
const DefaultCloseDelay = 2 * time.Second

// DefaultDraftTimeout bounds drafting a description after a positive analysis.
const DefaultDraftTimeout = 20 * time.Second

// Analyzer checks a location for potholes.
type Analyzer interface {
	Analyze(ctx context.Context, lat, lng float64) (models.AnalysisResult, error)
}

// Submitter files a report with the 311 service.
type Submitter interface {
	Submit(ctx context.Context, report models.Report) (models.SubmissionResult, error)
}

// Describer drafts a report description from an image of the location.
type Describer interface {
	DescribePothole(ctx context.Context, imageURL string) (string, error)
}

type Config struct {
	Analyzer  Analyzer
	Submitter Submitter
	// Describer is optional.
	Describer Describer
	// OnSubmitted is called once per successful submission, before the workflow enters [Submitted].
	OnSubmitted func(markerID, reportID string) error
	// CloseDelay defaults to [DefaultCloseDelay]. A negative delay disables closing automatically.
	CloseDelay time.Duration
	// DraftTimeout defaults to [DefaultDraftTimeout].
	DraftTimeout time.Duration
	Logger       *slog.Logger
}

// Controller drives the workflow state machine. It is safe for concurrent use.
type Controller struct {
	analyzer    Analyzer
	submitter   Submitter
	describer   Describer
	onSubmitted func(markerID, reportID string) error
	closeDelay   time.Duration
	draftTimeout time.Duration
	logger       *slog.Logger
	ctx         context.Context //nolint:containedctx // parent of the calls outliving the request that started them.

	mu         sync.Mutex
	state      State
	seq        uint64
	cancelCall context.CancelFunc
	closeTimer *time.Timer
	wg         sync.WaitGroup
}

// New creates a controller in [Idle]. Cancelling ctx aborts in-flight calls.
func New(ctx context.Context, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	closeDelay := cfg.CloseDelay
	if closeDelay == 0 {
		closeDelay = DefaultCloseDelay
	}
	draftTimeout := cfg.DraftTimeout
	if draftTimeout <= 0 {
		draftTimeout = DefaultDraftTimeout
	}
	onSubmitted := cfg.OnSubmitted
	if onSubmitted == nil {
		onSubmitted = func(string, string) error { return nil }
	}
	return &Controller{ //nolint:exhaustruct // zero values are ready to use.
		analyzer:    cfg.Analyzer,
		submitter:   cfg.Submitter,
		describer:   cfg.Describer,
		onSubmitted: onSubmitted,
		closeDelay:   closeDelay,
		draftTimeout: draftTimeout,
		logger:       logger,
		ctx:         ctx,
		state:       Idle{},
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Select starts analyzing marker, abandoning whatever the workflow was doing unless it is submitting. A marker that
// already has a report is refused with [models.ErrAlreadySubmitted] and the workflow is left as it is.
func (c *Controller) Select(marker models.Marker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(Submitting); ok {
		return errors.Wrap(ErrBusy, "select marker", slog.String("marker_id", marker.ID))
	}
	if marker.Submitted() {
		return errors.Wrap(models.ErrAlreadySubmitted, "select marker",
			slog.String("marker_id", marker.ID), slog.String("report_id", marker.ReportID))
	}
	c.stopPendingLocked()

	ticket := c.nextTicketLocked(marker.ID)
	c.state = Analyzing{Ticket: ticket, Target: marker}
	ctx, cancel := c.startCallLocked()
	go c.analyze(ctx, cancel, ticket, marker)
	return nil
}

func (c *Controller) analyze(ctx context.Context, cancel context.CancelFunc, ticket Ticket, marker models.Marker) {
	defer c.wg.Done()
	defer cancel()
	lat, lng := marker.Position.Latitude, marker.Position.Longitude
	result, err := c.analyzer.Analyze(ctx, lat, lng)

	var next State
	switch {
	case err != nil:
		c.logger.LogAttrs(ctx, slog.LevelWarn, "analysis failed",
			slog.String("marker_id", marker.ID), errors.SlogError(err))
		next = AnalysisFailed{Target: marker, Message: MessageAnalyzeError}
	case result.Error != "":
		next = AnalysisFailed{Target: marker, Message: MessageUnverified + " " + result.Error}
	case result.DetectionCount == 0:
		next = AnalysisNegative{Target: marker, Result: result, Message: MessageNoPothole}
	default:
		next = AnalysisPositive{Ticket: ticket, Target: marker, Result: result, SuggestedDescription: ""}
	}

	c.mu.Lock()
	applied := c.applyLocked(ticket, next)
	c.mu.Unlock()
	if _, positive := next.(AnalysisPositive); applied && positive {
		c.draft(ctx, ticket, marker, result)
	}
}

// draft asks the describer for a description and attaches it to the positive analysis it was started for. Drafting
// is best effort and never holds back the analysis result.
func (c *Controller) draft(ctx context.Context, ticket Ticket, marker models.Marker, result models.AnalysisResult) {
	if c.describer == nil || result.ImageURL() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.draftTimeout)
	defer cancel()
	description, err := c.describer.DescribePothole(ctx, result.ImageURL())
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "could not draft description",
			slog.String("marker_id", marker.ID), errors.SlogError(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state.(AnalysisPositive)
	if !ok || s.Ticket != ticket {
		c.discardLocked(ticket)
		return
	}
	s.SuggestedDescription = description
	c.state = s
}

// Proceed opens the report form after a positive analysis.
func (c *Controller) Proceed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.state.(AnalysisPositive)
	if !ok {
		return errors.Wrap(ErrInvalidTransition, "proceed", slog.String("state", c.state.Kind().String()))
	}
	c.state = FormOpen{
		Target: s.Target,
		Result: s.Result,
		Form: Form{
			Report: models.Report{
				Latitude:      s.Target.Position.Latitude,
				Longitude:     s.Target.Position.Longitude,
				Description:   s.SuggestedDescription,
				Severity:      models.DefaultSeverity,
				ReporterName:  "",
				ReporterEmail: "",
				ReporterPhone: "",
			},
			Error: "",
		},
	}
	return nil
}

// Submit validates input and submits it as a report for the selected marker. The location always comes from the
// marker. Invalid input returns a [*models.ValidationError] and keeps the form open without calling the 311
// service.
func (c *Controller) Submit(input models.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		target models.Marker
		result models.AnalysisResult
	)
	switch s := c.state.(type) {
	case FormOpen:
		target, result = s.Target, s.Result
	case SubmissionFailed:
		target, result = s.Target, s.Result
	case Submitting:
		return errors.Wrap(ErrBusy, "submit")
	default:
		return errors.Wrap(ErrInvalidTransition, "submit", slog.String("state", c.state.Kind().String()))
	}
	if !result.Positive() {
		return errors.Wrap(ErrInvalidTransition, "submit without positive analysis",
			slog.String("marker_id", target.ID))
	}

	input.Latitude = target.Position.Latitude
	input.Longitude = target.Position.Longitude
	report := input.Normalize()
	if err := report.Validate(); err != nil {
		var validationErr *models.ValidationError
		msg := err.Error()
		if errors.As(err, &validationErr) {
			msg = validationErr.Message
		}
		c.state = FormOpen{Target: target, Result: result, Form: Form{Report: report, Error: msg}}
		return err
	}

	ticket := c.nextTicketLocked(target.ID)
	c.state = Submitting{Ticket: ticket, Target: target, Result: result, Form: Form{Report: report, Error: ""}}
	ctx, cancel := c.startCallLocked()
	go c.submit(ctx, cancel, ticket, target, result, report)
	return nil
}

func (c *Controller) submit(
	ctx context.Context,
	cancel context.CancelFunc,
	ticket Ticket,
	target models.Marker,
	analysis models.AnalysisResult,
	report models.Report,
) {
	defer c.wg.Done()
	defer cancel()
	result, err := c.submitter.Submit(ctx, report)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || !result.Success {
		msg := MessageSubmitFailed
		if err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "submission failed",
				slog.String("marker_id", target.ID), errors.SlogError(err))
		} else if result.Message != "" {
			msg = result.Message
		}
		c.applyLocked(ticket, SubmissionFailed{Target: target, Result: analysis, Form: Form{Report: report, Error: msg}})
		return
	}

	if current, ok := ticketOf(c.state); !ok || current != ticket {
		c.discardLocked(ticket)
		return
	}
	if markErr := c.onSubmitted(target.ID, result.ReportID); markErr != nil {
		c.logger.LogAttrs(ctx, slog.LevelError, "could not mark marker as submitted",
			slog.String("marker_id", target.ID), slog.String("report_id", result.ReportID),
			errors.SlogError(markErr))
	}
	target.ReportID = result.ReportID
	c.state = Submitted{Ticket: ticket, Target: target, ReportID: result.ReportID, Message: result.Message}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "report submitted",
		slog.String("marker_id", target.ID), slog.String("report_id", result.ReportID))

	if c.closeDelay > 0 {
		c.closeTimer = time.AfterFunc(c.closeDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if s, ok := c.state.(Submitted); ok && s.Ticket == ticket {
				c.state = Idle{}
			}
		})
	}
}

// Close abandons the workflow and discards the form. It is refused while submitting.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(Submitting); ok {
		return errors.Wrap(ErrBusy, "close")
	}
	c.stopPendingLocked()
	c.state = Idle{}
	return nil
}

// Wait blocks until all calls started so far have completed.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) nextTicketLocked(markerID string) Ticket {
	c.seq++
	return Ticket{MarkerID: markerID, Seq: c.seq}
}

// startCallLocked registers a call goroutine and returns its context. The goroutine cancels the context when it
// finishes.
func (c *Controller) startCallLocked() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelCall = cancel
	c.wg.Add(1)
	return ctx, cancel
}

func (c *Controller) stopPendingLocked() {
	if c.cancelCall != nil {
		c.cancelCall()
		c.cancelCall = nil
	}
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
}

// applyLocked moves to next if the state still carries ticket and reports whether it did.
func (c *Controller) applyLocked(ticket Ticket, next State) bool {
	if current, ok := ticketOf(c.state); !ok || current != ticket {
		c.discardLocked(ticket)
		return false
	}
	c.state = next
	return true
}

func (c *Controller) discardLocked(ticket Ticket) {
	c.logger.LogAttrs(c.ctx, slog.LevelDebug, "discarding stale completion",
		slog.String("marker_id", ticket.MarkerID),
		slog.Uint64("seq", ticket.Seq),
		slog.String("state", c.state.Kind().String()))
}
