// Package export drives a single PDF export job through its lifecycle:
// create, poll until terminal, download, persist.
package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/silverfin-export/internal/artifact"
	"github.com/sells-group/silverfin-export/internal/metrics"
	"github.com/sells-group/silverfin-export/internal/model"
	"github.com/sells-group/silverfin-export/internal/resilience"
	"github.com/sells-group/silverfin-export/internal/selection"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 200
)

// Config controls the export job lifecycle.
type Config struct {
	// ExportPDFID is the export template configured on the platform.
	ExportPDFID string
	// PollInterval is the wait before each status poll. Default: 3s.
	PollInterval time.Duration
	// MaxAttempts bounds the number of status polls. Default: 200.
	MaxAttempts int
	// VerifyPDF rejects downloads that do not sniff as application/pdf.
	VerifyPDF bool
}

// Outcome is the terminal result of one export attempt: exactly one of
// Path or Failure is set.
type Outcome struct {
	Company  silverfin.Company
	Selected selection.Selected
	Path     string
	Failure  *model.Failure
	Polls    int
}

// OK reports whether the export produced a file.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock used between polls.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithMetrics records export outcomes and poll counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// Driver runs export jobs. It is safe for concurrent use.
type Driver struct {
	client  silverfin.Client
	sink    artifact.Sink
	cfg     Config
	clock   Clock
	metrics *metrics.Metrics
}

// NewDriver creates a Driver that writes finished documents to sink.
func NewDriver(client silverfin.Client, sink artifact.Sink, cfg Config, opts ...Option) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	d := &Driver{
		client: client,
		sink:   sink,
		cfg:    cfg,
		clock:  RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives one export job to a terminal outcome. Every failure is
// returned as data in Outcome.Failure.
func (d *Driver) Run(ctx context.Context, company silverfin.Company, sel selection.Selected) Outcome {
	out := Outcome{Company: company, Selected: sel}
	log := zap.L().With(
		zap.String("company", company.Name),
		zap.Int64("company_id", company.ID),
		zap.String("period", sel.Period.EndDate),
		zap.String("label", sel.Label),
	)

	fail := func(kind model.FailureKind, err error) Outcome {
		out.Failure = &model.Failure{
			Company:   company.Name,
			CompanyID: company.ID,
			Period:    sel.Period.EndDate,
			Label:     sel.Label,
			Kind:      kind,
			Category:  resilience.ClassifyError(err),
			Error:     err.Error(),
		}
		d.metrics.ObserveExport(string(kind))
		log.Warn("export failed", zap.String("kind", string(kind)), zap.Error(err))
		return out
	}

	inst, err := d.client.CreateExport(ctx, company.ID, sel.Period.ID, silverfin.CreateExportRequest{
		Title:       Title(company.Name, sel.Period.EndDate, sel.Label),
		ExportPDFID: d.cfg.ExportPDFID,
	})
	if err != nil {
		return fail(model.FailureTransport, err)
	}
	log = log.With(zap.Int64("instance_id", inst.ID))
	log.Info("export job created")

	done, polls, kind, err := d.poll(ctx, company.ID, sel.Period.ID, inst.ID, log)
	out.Polls = polls
	d.metrics.ObservePolls(polls)
	if err != nil {
		return fail(kind, err)
	}

	if done.DownloadURL == nil || *done.DownloadURL == "" {
		return fail(model.FailureRemoteJob, &RemoteJobError{InstanceID: inst.ID, Message: "created without download_url"})
	}

	data, err := d.client.Download(ctx, *done.DownloadURL)
	if err != nil {
		return fail(model.FailureTransport, err)
	}

	if d.cfg.VerifyPDF && !artifact.IsPDF(data) {
		return fail(model.FailureStorage, &ContentError{InstanceID: inst.ID, MIME: artifact.DetectMIME(data)})
	}

	name := FileName(company.Name, sel.Period.EndDate, sel.Label)
	path, err := d.sink.Save(ctx, name, data)
	if err != nil {
		return fail(model.FailureStorage, err)
	}

	out.Path = path
	d.metrics.ObserveExport(metrics.OutcomeSaved)
	log.Info("export saved", zap.String("path", path), zap.Int("bytes", len(data)), zap.Int("polls", polls))
	return out
}

// poll waits PollInterval before each status request and stops at the first
// terminal state. It returns the finished instance, or the failure kind and
// error that ended polling.
func (d *Driver) poll(ctx context.Context, companyID, periodID, instanceID int64, log *zap.Logger) (*silverfin.ExportInstance, int, model.FailureKind, error) {
	start := d.clock.Now()
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.clock.Sleep(ctx, d.cfg.PollInterval); err != nil {
			return nil, attempt - 1, model.FailureTransport, err
		}

		inst, err := d.client.GetExport(ctx, companyID, periodID, instanceID)
		if err != nil {
			return nil, attempt, model.FailureTransport, err
		}
		log.Debug("export job polled", zap.Int("attempt", attempt), zap.String("state", inst.State))

		switch inst.State {
		case silverfin.StateCreated:
			return inst, attempt, "", nil
		case silverfin.StateError:
			msg := ""
			if inst.ProcessingError != nil {
				msg = *inst.ProcessingError
			}
			return nil, attempt, model.FailureRemoteJob, &RemoteJobError{InstanceID: instanceID, Message: msg}
		}
	}

	return nil, d.cfg.MaxAttempts, model.FailureTimeout, &TimeoutError{
		InstanceID: instanceID,
		Attempts:   d.cfg.MaxAttempts,
		Elapsed:    d.clock.Now().Sub(start),
	}
}
