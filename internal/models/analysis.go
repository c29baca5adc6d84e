package models

import "time"

// AnalysisResult is the analyzer's verdict for a location.
//
// A zero DetectionCount is a valid outcome which means the location must not be reported. Error is set when the
// analyzer answered but could not complete the analysis.
type AnalysisResult struct {
	DetectionCount    int
	StreetViewURL     string
	AnnotatedImageURL string
	Error             string
}

// Positive reports whether a report may be submitted for the analyzed location.
func (a AnalysisResult) Positive() bool {
	return a.Error == "" && a.DetectionCount > 0
}

// ImageURL returns the most informative image of the analysis, preferring the annotated one.
func (a AnalysisResult) ImageURL() string {
	if a.AnnotatedImageURL != "" {
		return a.AnnotatedImageURL
	}
	return a.StreetViewURL
}

// SubmissionResult is the 311 service's answer to a submitted report.
type SubmissionResult struct {
	Success  bool   `json:"success"`
	ReportID string `json:"reportId,omitempty"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// ReportStatus is the processing state of a submitted report as tracked by the 311 service.
type ReportStatus struct {
	ReportID            string    `json:"reportId"    yaml:"reportId"`
	Status              string    `json:"status"      yaml:"status"`
	Severity            Severity  `json:"severity"    yaml:"severity"`
	EstimatedResolution string    `json:"estimatedResolution" yaml:"estimatedResolution"`
	SubmittedAt         time.Time `json:"submittedAt" yaml:"submittedAt"`
}
