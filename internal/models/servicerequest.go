package models

import "time"

// EstimatedResolution is what the 311 service promises for new pothole reports.
const EstimatedResolution = "5-7 business days"

const StatusSubmitted = "submitted"

// ServiceRequest is a report accepted by the 311 service.
type ServiceRequest struct {
	ReportID    string
	Report      Report
	Status      string
	SubmittedAt time.Time
}

// ReportStatus returns the status lookup answer for the request.
func (s ServiceRequest) ReportStatus() ReportStatus {
	return ReportStatus{
		ReportID:            s.ReportID,
		Status:              s.Status,
		Severity:            s.Report.Severity,
		EstimatedResolution: EstimatedResolution,
		SubmittedAt:         s.SubmittedAt,
	}
}
