package models

import (
	"fmt"
	"strings"

	"github.com/potholemap/potholemap/internal/errors"
)

// Severity classifies the damage of a reported pothole.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DefaultSeverity is pre-selected in new report forms.
const DefaultSeverity = SeverityMedium

var ErrInvalidSeverity = errors.NewSentinel("invalid severity")

// Severities lists the severities in ascending order for rendering choices.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh}
}

// ParseSeverity parses s. An empty string yields [DefaultSeverity].
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case "":
		return DefaultSeverity, nil
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sev, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
}

// Label is the human-readable explanation shown next to the severity choice.
func (s Severity) Label() string {
	switch s {
	case SeverityLow:
		return "Low - Minor surface damage"
	case SeverityMedium:
		return "Medium - Moderate damage"
	case SeverityHigh:
		return "High - Severe damage, safety hazard"
	default:
		return string(s)
	}
}

// Report is a 311 pothole report as submitted to the city.
type Report struct {
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Description   string   `json:"description"`
	Severity      Severity `json:"severity"`
	ReporterName  string   `json:"reporterName,omitempty"`
	ReporterEmail string   `json:"reporterEmail,omitempty"`
	ReporterPhone string   `json:"reporterPhone,omitempty"`
}

// ValidationError is returned when user input is rejected before anything is sent over the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Position returns the reported location.
func (r Report) Position() Position {
	return Position{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Normalize trims the free-text fields and fills in the default severity.
func (r Report) Normalize() Report {
	r.Description = strings.TrimSpace(r.Description)
	r.ReporterName = strings.TrimSpace(r.ReporterName)
	r.ReporterEmail = strings.TrimSpace(r.ReporterEmail)
	r.ReporterPhone = strings.TrimSpace(r.ReporterPhone)
	if r.Severity == "" {
		r.Severity = DefaultSeverity
	}
	return r
}

// Validate checks the report after [Report.Normalize].
func (r Report) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return &ValidationError{Field: "description", Message: "Please provide a description of the pothole."}
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return &ValidationError{Field: "severity", Message: "Please choose low, medium or high severity."}
	}
	if !r.Position().Valid() {
		return &ValidationError{Field: "location", Message: "The report location is not a valid coordinate."}
	}
	return nil
}
