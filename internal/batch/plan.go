package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/silverfin-export/internal/model"
	"github.com/sells-group/silverfin-export/internal/selection"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

// CompanyPlan is what a run would export for one company.
type CompanyPlan struct {
	Company  silverfin.Company
	Selected []selection.Selected
	// Kind and Error are set when the company would be skipped.
	Kind  model.FailureKind
	Error string
}

// Plan discovers companies and selects their periods without creating any
// export job. Companies are resolved batch by batch, like Run, and results
// keep discovery order.
func (o *Orchestrator) Plan(ctx context.Context) ([]CompanyPlan, error) {
	companies, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}

	plans := make([]CompanyPlan, len(companies))
	offset := 0
	for _, b := range Chunk(companies, o.cfg.BatchSize) {
		var g errgroup.Group
		for i, company := range b {
			idx := offset + i
			g.Go(func() error {
				p := CompanyPlan{Company: company}
				selected, kind, err := o.selectPeriods(ctx, company)
				if err != nil {
					p.Kind = kind
					p.Error = err.Error()
				} else {
					p.Selected = selected
				}
				plans[idx] = p
				return nil
			})
		}
		_ = g.Wait()
		offset += len(b)
	}
	return plans, nil
}
