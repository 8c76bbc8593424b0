package model

import "fmt"

// FailureKind classifies where an export attempt failed.
type FailureKind string

const (
	// FailureTransport is a network failure or non-2xx response.
	FailureTransport FailureKind = "transport"
	// FailureRemoteJob is an export job the platform marked as errored.
	FailureRemoteJob FailureKind = "remote_job"
	// FailureTimeout is an export job still pending after the poll budget.
	FailureTimeout FailureKind = "timeout"
	// FailureStorage is a downloaded artifact that could not be stored.
	FailureStorage FailureKind = "storage"
	// FailureSelection is a company without enough closed fiscal years.
	FailureSelection FailureKind = "selection"
)

// Failure records one company or (company, period) attempt that did not
// produce a file. Period and Label are empty for company-level failures.
type Failure struct {
	Company   string      `json:"company" yaml:"company"`
	CompanyID int64       `json:"company_id" yaml:"company_id"`
	Period    string      `json:"period,omitempty" yaml:"period,omitempty"`
	Label     string      `json:"label,omitempty" yaml:"label,omitempty"`
	Kind      FailureKind `json:"kind" yaml:"kind"`
	Category  string      `json:"category" yaml:"category"`
	Error     string      `json:"error" yaml:"error"`
}

// String renders the failure as a single ledger line.
func (f Failure) String() string {
	period, label := f.Period, f.Label
	if period == "" {
		period = "-"
	}
	if label == "" {
		label = "-"
	}
	return fmt.Sprintf("%s (id %d) | %s | %s | %s | %s", f.Company, f.CompanyID, period, label, f.Kind, f.Error)
}
