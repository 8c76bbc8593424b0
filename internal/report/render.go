package report

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/silverfin-export/internal/model"
)

// Render writes the human-readable run summary followed by the failure
// ledger, one line per failure.
func Render(w io.Writer, s *model.Summary) error {
	lines := []string{
		"Export summary",
		fmt.Sprintf("  Companies processed: %d/%d", s.ProcessedCompanies, s.TotalCompanies),
		fmt.Sprintf("  PDFs generated:      %d", s.PDFsGenerated),
		fmt.Sprintf("  Failures:            %d", len(s.Failures)),
	}
	if len(s.Failures) > 0 {
		lines = append(lines, "", "Failures (company | period | label | kind | error):")
		for _, f := range s.Failures {
			lines = append(lines, "  "+f.String())
		}
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return eris.Wrap(err, "report: write summary")
		}
	}
	return nil
}

// yamlReport is the on-disk shape of --report-file.
type yamlReport struct {
	RunID   string         `yaml:"run_id,omitempty"`
	FirmID  string         `yaml:"firm_id"`
	Status  string         `yaml:"status"`
	Summary *model.Summary `yaml:"summary"`
}

// WriteYAML writes the summary as a YAML document.
func WriteYAML(w io.Writer, runID, firmID string, s *model.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	doc := yamlReport{
		RunID:   runID,
		FirmID:  firmID,
		Status:  string(s.Status()),
		Summary: s,
	}
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "report: flush yaml")
	}
	return nil
}
