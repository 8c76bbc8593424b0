// Package report aggregates per-export outcomes into the end-of-run summary.
package report

import (
	"sync"

	"github.com/sells-group/silverfin-export/internal/model"
)

// Stats is the run-wide aggregate shared by all company and period tasks.
// All methods are safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	total     int
	processed int
	saved     int
	failures  []model.Failure
}

// NewStats returns an empty aggregate.
func NewStats() *Stats {
	return &Stats{}
}

// SetTotal records how many companies were discovered.
func (s *Stats) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// RecordSaved counts one saved document.
func (s *Stats) RecordSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
}

// RecordFailure appends f to the failure ledger.
func (s *Stats) RecordFailure(f model.Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
}

// CompanyDone counts a company whose whole fan-out has settled.
func (s *Stats) CompanyDone() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return s.processed
}

// Summary returns a snapshot of the aggregate.
func (s *Stats) Summary() *model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make([]model.Failure, len(s.failures))
	copy(failures, s.failures)
	return &model.Summary{
		ProcessedCompanies: s.processed,
		TotalCompanies:     s.total,
		PDFsGenerated:      s.saved,
		Failures:           failures,
	}
}
