package model

import "time"

// RunStatus represents the current state of an export run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusDegraded RunStatus = "degraded"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is one invocation of the exporter against a firm.
type Run struct {
	ID         string     `json:"id"`
	FirmID     string     `json:"firm_id"`
	Status     RunStatus  `json:"status"`
	Summary    *Summary   `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Summary is the end-of-run report.
type Summary struct {
	ProcessedCompanies int       `json:"processed_companies" yaml:"processed_companies"`
	TotalCompanies     int       `json:"total_companies" yaml:"total_companies"`
	PDFsGenerated      int       `json:"pdfs_generated" yaml:"pdfs_generated"`
	Failures           []Failure `json:"failures" yaml:"failures"`
}

// Degraded reports whether any failure was recorded.
func (s *Summary) Degraded() bool {
	return len(s.Failures) > 0
}

// Status maps the summary onto a terminal run status.
func (s *Summary) Status() RunStatus {
	if s.Degraded() {
		return RunStatusDegraded
	}
	return RunStatusComplete
}
