package workflow

import (
	"github.com/potholemap/potholemap/internal/models"
)

// Kind names a workflow state.
type Kind int

const (
	KindIdle Kind = iota
	KindAnalyzing
	KindAnalysisPositive
	KindAnalysisNegative
	KindAnalysisFailed
	KindFormOpen
	KindSubmitting
	KindSubmitted
	KindSubmissionFailed
)

var kindNames = [...]string{ //nolint:gochecknoglobals // lookup table.
	KindIdle:             "idle",
	KindAnalyzing:        "analyzing",
	KindAnalysisPositive: "analysis_positive",
	KindAnalysisNegative: "analysis_negative",
	KindAnalysisFailed:   "analysis_failed",
	KindFormOpen:         "form_open",
	KindSubmitting:       "submitting",
	KindSubmitted:        "submitted",
	KindSubmissionFailed: "submission_failed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Ticket identifies one asynchronous call. A completion is applied only while the state still carries the ticket
// the call was started with.
type Ticket struct {
	MarkerID string
	Seq      uint64
}

// State is the single value describing where the workflow is. The concrete types below are the only
// implementations.
type State interface {
	Kind() Kind
	// Marker returns the marker the workflow is about. It is the zero Marker in [Idle].
	Marker() models.Marker
}

// Form is the report being edited. Error holds the message shown above the form, if any.
type Form struct {
	Report models.Report
	Error  string
}

type Idle struct{}

type Analyzing struct {
	Ticket Ticket
	Target models.Marker
}

// AnalysisPositive carries the ticket of its analysis so that a description drafted afterwards finds its way back.
type AnalysisPositive struct {
	Ticket Ticket
	Target models.Marker
	Result models.AnalysisResult
	// SuggestedDescription is a drafted description, empty when drafting is disabled or failed.
	SuggestedDescription string
}

type AnalysisNegative struct {
	Target  models.Marker
	Result  models.AnalysisResult
	Message string
}

type AnalysisFailed struct {
	Target  models.Marker
	Message string
}

type FormOpen struct {
	Target models.Marker
	Result models.AnalysisResult
	Form   Form
}

type Submitting struct {
	Ticket Ticket
	Target models.Marker
	Result models.AnalysisResult
	Form   Form
}

type Submitted struct {
	Ticket   Ticket
	Target   models.Marker
	ReportID string
	Message  string
}

// SubmissionFailed keeps the form open so that the user can retry.
type SubmissionFailed struct {
	Target models.Marker
	Result models.AnalysisResult
	Form   Form
}

func (Idle) Kind() Kind             { return KindIdle }
func (Analyzing) Kind() Kind        { return KindAnalyzing }
func (AnalysisPositive) Kind() Kind { return KindAnalysisPositive }
func (AnalysisNegative) Kind() Kind { return KindAnalysisNegative }
func (AnalysisFailed) Kind() Kind   { return KindAnalysisFailed }
func (FormOpen) Kind() Kind         { return KindFormOpen }
func (Submitting) Kind() Kind       { return KindSubmitting }
func (Submitted) Kind() Kind        { return KindSubmitted }
func (SubmissionFailed) Kind() Kind { return KindSubmissionFailed }

func (Idle) Marker() models.Marker               { return models.Marker{} }
func (s Analyzing) Marker() models.Marker        { return s.Target }
func (s AnalysisPositive) Marker() models.Marker { return s.Target }
func (s AnalysisNegative) Marker() models.Marker { return s.Target }
func (s AnalysisFailed) Marker() models.Marker   { return s.Target }
func (s FormOpen) Marker() models.Marker         { return s.Target }
func (s Submitting) Marker() models.Marker       { return s.Target }
func (s Submitted) Marker() models.Marker        { return s.Target }
func (s SubmissionFailed) Marker() models.Marker { return s.Target }

// ticketOf returns the ticket of states waiting for or resulting from an asynchronous call.
func ticketOf(s State) (Ticket, bool) {
	switch s := s.(type) {
	case Analyzing:
		return s.Ticket, true
	case AnalysisPositive:
		return s.Ticket, true
	case Submitting:
		return s.Ticket, true
	case Submitted:
		return s.Ticket, true
	default:
		return Ticket{}, false
	}
}
