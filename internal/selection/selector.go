// Package selection picks the closed fiscal-year-end periods of a company
// that should be exported.
package selection

import (
	"fmt"

	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

// Labels name the fiscal-year-end periods by recency, most recent first.
var Labels = []string{
	"most-recent-last-closed-fiscal-year",
	"2nd-last-closed-fiscal-year",
	"3rd-last-closed-fiscal-year",
	"4th-last-closed-fiscal-year",
	"5th-last-closed-fiscal-year",
}

var ordinals = []string{"most recent", "second-to-last", "third-to-last", "fourth-to-last", "fifth-to-last"}

// Policy controls how many closed fiscal years a company must have and how
// many are exported.
type Policy struct {
	// RequiredDepth is the number of closed fiscal years that must exist
	// before any export is attempted. Default: 3.
	RequiredDepth int
	// MaxDepth caps how many closed fiscal years are exported. Default: 5.
	MaxDepth int
}

// DefaultPolicy requires a third-to-last closed fiscal year and exports up to five.
func DefaultPolicy() Policy {
	return Policy{RequiredDepth: 3, MaxDepth: 5}
}

// Normalize clamps the policy into the range covered by Labels.
func (p Policy) Normalize() Policy {
	if p.MaxDepth <= 0 || p.MaxDepth > len(Labels) {
		p.MaxDepth = len(Labels)
	}
	if p.RequiredDepth <= 0 {
		p.RequiredDepth = 1
	}
	if p.RequiredDepth > p.MaxDepth {
		p.RequiredDepth = p.MaxDepth
	}
	return p
}

// Selected is a period chosen for export together with its label.
type Selected struct {
	Period silverfin.Period
	Label  string
}

// SelectionError reports a company with fewer closed fiscal years than required.
type SelectionError struct {
	Required int
	Found    int
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("no %s closing period found", ordinals[e.Required-1])
}

// FiscalYearEnds filters periods down to those closing their fiscal year,
// keeping encounter order and dropping repeated period IDs.
func FiscalYearEnds(periods []silverfin.Period) []silverfin.Period {
	seen := make(map[int64]struct{}, len(periods))
	var out []silverfin.Period
	for _, p := range periods {
		if !p.IsFiscalYearEnd() {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Select returns the labelled periods to export under policy, or a
// *SelectionError when the company lacks the required closed fiscal years.
func Select(periods []silverfin.Period, policy Policy) ([]Selected, error) {
	policy = policy.Normalize()

	ends := FiscalYearEnds(periods)
	if len(ends) < policy.RequiredDepth {
		return nil, &SelectionError{Required: policy.RequiredDepth, Found: len(ends)}
	}

	n := min(len(ends), policy.MaxDepth)
	out := make([]Selected, 0, n)
	for i := range n {
		out = append(out, Selected{Period: ends[i], Label: Labels[i]})
	}
	return out, nil
}
