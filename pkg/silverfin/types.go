package silverfin

// Export instance states reported by the platform.
const (
	StateCreated = "created"
	StateError   = "error"
)

// Company is a client file registered under the firm.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FiscalYear is the bookyear a period belongs to.
type FiscalYear struct {
	ID      int64  `json:"id,omitempty"`
	EndDate string `json:"end_date"`
}

// Period is an accounting period of a company. Dates are ISO yyyy-mm-dd strings.
type Period struct {
	ID         int64      `json:"id"`
	EndDate    string     `json:"end_date"`
	FiscalYear FiscalYear `json:"fiscal_year"`
}

// IsFiscalYearEnd reports whether the period closes its fiscal year.
func (p Period) IsFiscalYearEnd() bool {
	return p.EndDate != "" && p.EndDate == p.FiscalYear.EndDate
}

// CreateExportRequest is the body for POST .../export_pdf_instances.
type CreateExportRequest struct {
	Title       string `json:"title"`
	ExportPDFID string `json:"export_pdf_id"`
}

// ExportInstance is an asynchronous PDF export job. DownloadURL and
// ProcessingError stay nil until the job reaches a terminal state.
type ExportInstance struct {
	ID              int64   `json:"id"`
	State           string  `json:"state"`
	DownloadURL     *string `json:"download_url,omitempty"`
	ProcessingError *string `json:"processing_error,omitempty"`
}

// Terminal reports whether the platform has finished processing the job.
func (e *ExportInstance) Terminal() bool {
	return e.State == StateCreated || e.State == StateError
}
