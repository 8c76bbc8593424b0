package export

import (
	"fmt"
	"time"
)

// RemoteJobError is an export job the platform finished in the error state.
type RemoteJobError struct {
	InstanceID int64
	Message    string
}

func (e *RemoteJobError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no processing error reported"
	}
	return fmt.Sprintf("export instance %d failed: %s", e.InstanceID, msg)
}

// Transient is false: the platform rejected the job.
func (e *RemoteJobError) Transient() bool { return false }

// TimeoutError is an export job still pending after the poll budget ran out.
type TimeoutError struct {
	InstanceID int64
	Attempts   int
	Elapsed    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("export instance %d still pending after %d polls (%.1f minutes)",
		e.InstanceID, e.Attempts, e.Elapsed.Minutes())
}

// Transient is true: the job may still complete on a later run.
func (e *TimeoutError) Transient() bool { return true }

// ContentError is a downloaded document that is not a PDF.
type ContentError struct {
	InstanceID int64
	MIME       string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("export instance %d: downloaded content is %s, not application/pdf", e.InstanceID, e.MIME)
}

// Transient is false: re-downloading returns the same bytes.
func (e *ContentError) Transient() bool { return false }
