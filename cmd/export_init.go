package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/silverfin-export/internal/artifact"
	"github.com/sells-group/silverfin-export/internal/batch"
	"github.com/sells-group/silverfin-export/internal/config"
	"github.com/sells-group/silverfin-export/internal/export"
	"github.com/sells-group/silverfin-export/internal/metrics"
	"github.com/sells-group/silverfin-export/internal/selection"
	"github.com/sells-group/silverfin-export/internal/store"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

// newClock builds the poll clock; tests replace it with a virtual one.
var newClock = func() export.Clock { return export.RealClock{} }

// exportEnv holds the clients and components needed by export and plan.
type exportEnv struct {
	Store        store.Store // nil when the ledger is disabled
	Metrics      *metrics.Metrics
	Orchestrator *batch.Orchestrator
}

// Close releases resources held by the export environment.
func (e *exportEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initExport validates configuration and wires the client, artifact sink,
// export driver, and orchestrator. Callers should defer env.Close().
func initExport(ctx context.Context, c *config.Config, hooks batch.Hooks) (*exportEnv, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	client := newClient(c)

	sink, err := newSink(c)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	driver := export.NewDriver(client, sink, export.Config{
		ExportPDFID:  c.ExportPDFID,
		PollInterval: c.Export.PollInterval(),
		MaxAttempts:  c.Export.MaxPollAttempts,
		VerifyPDF:    c.Export.VerifyPDF,
	}, export.WithClock(newClock()), export.WithMetrics(m))

	orch := batch.New(client, driver, batch.Config{
		BatchSize:        c.Batch.Size,
		CompaniesPerPage: c.API.CompaniesPerPage,
		PeriodsPerPage:   c.API.PeriodsPerPage,
		Policy: selection.Policy{
			RequiredDepth: c.Selection.RequiredDepth,
			MaxDepth:      c.Selection.MaxDepth,
		},
	}, batch.WithHooks(hooks), batch.WithMetrics(m))

	st, err := initStore(ctx, c)
	if err != nil {
		// The ledger is bookkeeping; a broken ledger never blocks an export.
		zap.L().Warn("run ledger unavailable, continuing without it", zap.Error(err))
		st = nil
	}

	return &exportEnv{Store: st, Metrics: m, Orchestrator: orch}, nil
}

func newClient(c *config.Config) silverfin.Client {
	return silverfin.NewClient(c.FirmID, c.Token,
		silverfin.WithBaseURL(c.API.BaseURL),
		silverfin.WithHTTPClient(&http.Client{Timeout: c.API.Timeout()}),
		silverfin.WithRateLimit(c.API.RequestsPerSecond),
	)
}

// newSink returns the local output directory, mirrored to object storage
// when a mirror endpoint is configured.
func newSink(c *config.Config) (artifact.Sink, error) {
	local, err := artifact.NewLocal(c.OutputDir)
	if err != nil {
		return nil, err
	}
	if !c.Mirror.Enabled() {
		return local, nil
	}

	mirror, err := artifact.NewMinio(artifact.MinioConfig{
		Endpoint:  c.Mirror.Endpoint,
		Bucket:    c.Mirror.Bucket,
		Prefix:    c.Mirror.Prefix,
		AccessKey: c.Mirror.AccessKey,
		SecretKey: c.Mirror.SecretKey,
		Region:    c.Mirror.Region,
		UseSSL:    c.Mirror.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init mirror")
	}
	return &artifact.Mirrored{Primary: local, Mirror: mirror}, nil
}

// initStore opens and migrates the configured run ledger. It returns a nil
// Store when the ledger is disabled.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil || st == nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
