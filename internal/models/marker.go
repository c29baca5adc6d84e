package models

import (
	"log/slog"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
)

var ErrAlreadySubmitted = errors.NewSentinel("marker already submitted")

// Marker is the on-map representation of a reported pothole.
type Marker struct {
	ID          string
	Position    Position
	Description string
	StreetName  string
	CreatedAt   time.Time
	// ReportID is the 311 report identifier once a report has been submitted for this marker.
	ReportID string
}

// Submitted reports whether a 311 report has been filed for the marker.
func (m *Marker) Submitted() bool {
	return m.ReportID != ""
}

// MarkSubmitted records the 311 report identifier. A marker is submitted at most once.
func (m *Marker) MarkSubmitted(reportID string) error {
	if reportID == "" {
		return errors.New("empty report ID", slog.String("marker_id", m.ID))
	}
	if m.Submitted() {
		return errors.Wrap(ErrAlreadySubmitted, "mark submitted",
			slog.String("marker_id", m.ID), slog.String("report_id", m.ReportID))
	}
	m.ReportID = reportID
	return nil
}
