// Package metrics exposes Prometheus counters for export runs. Metrics are
// written to a node-exporter textfile at the end of a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// OutcomeSaved labels exports that produced a file.
const OutcomeSaved = "saved"

// Metrics holds the collectors for one run. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	exports      *prometheus.CounterVec
	pollAttempts prometheus.Histogram
	companies    *prometheus.CounterVec
	lastRun      prometheus.Gauge
}

// New registers the export collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverfin_exports_total",
			Help: "Export attempts by outcome (saved or failure kind)",
		}, []string{"outcome"}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "silverfin_export_poll_attempts",
			Help:    "Status polls needed per export job",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
		}),
		companies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "silverfin_companies_processed_total",
			Help: "Companies whose export fan-out finished, by result",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "silverfin_export_last_run_timestamp_seconds",
			Help: "Unix time the last export run finished",
		}),
	}
	reg.MustRegister(m.exports, m.pollAttempts, m.companies, m.lastRun)
	return m
}

// ObserveExport counts one finished export attempt.
func (m *Metrics) ObserveExport(outcome string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(outcome).Inc()
}

// ObservePolls records how many polls a job took.
func (m *Metrics) ObservePolls(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pollAttempts.Observe(float64(n))
}

// CompanyDone counts a company whose fan-out has completed.
func (m *Metrics) CompanyDone(failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.companies.WithLabelValues(result).Inc()
}

// WriteTextfile stamps the run time and writes all metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	m.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
