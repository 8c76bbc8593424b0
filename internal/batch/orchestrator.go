// Package batch discovers every company of a firm and exports their closed
// fiscal years in sequential batches of concurrently processed companies.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/silverfin-export/internal/export"
	"github.com/sells-group/silverfin-export/internal/metrics"
	"github.com/sells-group/silverfin-export/internal/model"
	"github.com/sells-group/silverfin-export/internal/report"
	"github.com/sells-group/silverfin-export/internal/resilience"
	"github.com/sells-group/silverfin-export/internal/selection"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

const (
	defaultBatchSize        = 20
	defaultCompaniesPerPage = 200
	defaultPeriodsPerPage   = 200
)

// Exporter runs one export job to a terminal outcome.
type Exporter interface {
	Run(ctx context.Context, company silverfin.Company, sel selection.Selected) export.Outcome
}

// Config controls discovery paging and batch sizing.
type Config struct {
	BatchSize        int
	CompaniesPerPage int
	PeriodsPerPage   int
	Policy           selection.Policy
}

// Hooks observe run progress. Both callbacks may be nil. OnCompanyDone is
// called concurrently from company goroutines.
type Hooks struct {
	OnBatchStart  func(index, total, size int)
	OnCompanyDone func(company silverfin.Company, processed, total int)
}

// Orchestrator pages through companies and drives their exports.
type Orchestrator struct {
	client   silverfin.Client
	exporter Exporter
	cfg      Config
	hooks    Hooks
	metrics  *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHooks installs progress callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// WithMetrics records per-company results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator. Zero config values take their defaults.
func New(client silverfin.Client, exporter Exporter, cfg Config, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.CompaniesPerPage <= 0 {
		cfg.CompaniesPerPage = defaultCompaniesPerPage
	}
	if cfg.PeriodsPerPage <= 0 {
		cfg.PeriodsPerPage = defaultPeriodsPerPage
	}
	if cfg.Policy == (selection.Policy{}) {
		cfg.Policy = selection.DefaultPolicy()
	}
	o := &Orchestrator{client: client, exporter: exporter, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Discover pages through all companies until a page comes back short or
// empty. Any page failure aborts discovery.
func (o *Orchestrator) Discover(ctx context.Context) ([]silverfin.Company, error) {
	var all []silverfin.Company
	for page := 1; ; page++ {
		companies, err := o.client.ListCompanies(ctx, page, o.cfg.CompaniesPerPage)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: list companies page %d", page)
		}
		all = append(all, companies...)
		zap.L().Debug("companies page fetched", zap.Int("page", page), zap.Int("count", len(companies)))

		if len(companies) < o.cfg.CompaniesPerPage {
			break
		}
	}
	return all, nil
}

// Chunk splits companies into consecutive batches of at most size.
func Chunk(companies []silverfin.Company, size int) [][]silverfin.Company {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]silverfin.Company
	for start := 0; start < len(companies); start += size {
		end := min(start+size, len(companies))
		out = append(out, companies[start:end])
	}
	return out
}

// Run discovers companies and exports them batch by batch. It only returns
// an error when discovery fails; per-export failures are in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*model.Summary, error) {
	companies, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}

	stats := report.NewStats()
	stats.SetTotal(len(companies))

	batches := Chunk(companies, o.cfg.BatchSize)
	zap.L().Info("companies discovered",
		zap.Int("companies", len(companies)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", o.cfg.BatchSize),
	)

	for i, b := range batches {
		start := time.Now()
		if o.hooks.OnBatchStart != nil {
			o.hooks.OnBatchStart(i+1, len(batches), len(b))
		}
		zap.L().Info("batch started", zap.Int("batch", i+1), zap.Int("of", len(batches)), zap.Int("companies", len(b)))

		o.runBatch(ctx, b, stats, len(companies))

		zap.L().Info("batch finished", zap.Int("batch", i+1), zap.Duration("elapsed", time.Since(start)))
	}

	return stats.Summary(), nil
}

// runBatch exports every company of one batch concurrently and returns
// once all of them have settled.
func (o *Orchestrator) runBatch(ctx context.Context, companies []silverfin.Company, stats *report.Stats, total int) {
	var g errgroup.Group
	for _, company := range companies {
		g.Go(func() error {
			failed := o.runCompany(ctx, company, stats)
			processed := stats.CompanyDone()
			o.metrics.CompanyDone(failed)
			if o.hooks.OnCompanyDone != nil {
				o.hooks.OnCompanyDone(company, processed, total)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// runCompany selects the periods of one company and exports them
// concurrently. It reports whether any failure was recorded.
func (o *Orchestrator) runCompany(ctx context.Context, company silverfin.Company, stats *report.Stats) bool {
	log := zap.L().With(zap.String("company", company.Name), zap.Int64("company_id", company.ID))

	selected, kind, err := o.selectPeriods(ctx, company)
	if err != nil {
		stats.RecordFailure(model.Failure{
			Company:   company.Name,
			CompanyID: company.ID,
			Kind:      kind,
			Category:  resilience.ClassifyError(err),
			Error:     err.Error(),
		})
		log.Warn("company skipped", zap.String("kind", string(kind)), zap.Error(err))
		return true
	}

	var failed atomic.Bool
	var g errgroup.Group
	for _, sel := range selected {
		g.Go(func() error {
			out := o.exporter.Run(ctx, company, sel)
			if out.OK() {
				stats.RecordSaved()
				return nil
			}
			failed.Store(true)
			stats.RecordFailure(*out.Failure)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("company finished", zap.Int("exports", len(selected)), zap.Bool("failed", failed.Load()))
	return failed.Load()
}

func (o *Orchestrator) selectPeriods(ctx context.Context, company silverfin.Company) ([]selection.Selected, model.FailureKind, error) {
	periods, err := o.client.ListPeriods(ctx, company.ID, o.cfg.PeriodsPerPage)
	if err != nil {
		return nil, model.FailureTransport, err
	}
	selected, err := selection.Select(periods, o.cfg.Policy)
	if err != nil {
		return nil, model.FailureSelection, err
	}
	return selected, "", nil
}
