package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/silverfin-export/internal/batch"
	"github.com/sells-group/silverfin-export/internal/config"
	"github.com/sells-group/silverfin-export/internal/model"
	"github.com/sells-group/silverfin-export/internal/report"
	"github.com/sells-group/silverfin-export/pkg/silverfin"
)

// exportOptions are the per-invocation flags of the export command.
type exportOptions struct {
	BatchSize      int
	ReportFile     string
	FailOnDegraded bool
}

var exportOpts exportOptions

var exportCmd = &cobra.Command{
	Use:          "export",
	Short:        "Export closed fiscal years of every company as PDF",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runExport(ctx, cfg, exportOpts, os.Stdout)
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportOpts.BatchSize, "batch-size", 0, "companies processed concurrently per batch (overrides batch.size)")
	exportCmd.Flags().StringVar(&exportOpts.ReportFile, "report-file", "", "write the run summary as YAML to this path")
	exportCmd.Flags().BoolVar(&exportOpts.FailOnDegraded, "fail-on-degraded", false, "exit non-zero when any export failed")
	rootCmd.AddCommand(exportCmd)
}

// runExport performs one full export run and writes the summary to out.
func runExport(ctx context.Context, c *config.Config, opts exportOptions, out io.Writer) error {
	if opts.BatchSize > 0 {
		c.Batch.Size = opts.BatchSize
	}

	env, err := initExport(ctx, c, batch.Hooks{
		OnCompanyDone: func(company silverfin.Company, processed, total int) {
			zap.L().Info("progress",
				zap.Int("processed", processed),
				zap.Int("total", total),
				zap.String("company", company.Name),
			)
		},
	})
	if err != nil {
		return err
	}
	defer env.Close()

	runID := startRun(ctx, env, c.FirmID)

	summary, err := env.Orchestrator.Run(ctx)
	if err != nil {
		abortRun(ctx, env, runID, err)
		return eris.Wrap(err, "export run aborted")
	}

	if err := report.Render(out, summary); err != nil {
		return err
	}
	completeRun(ctx, env, runID, summary)

	if opts.ReportFile != "" {
		if err := writeReportFile(opts.ReportFile, runID, c.FirmID, summary); err != nil {
			return err
		}
	}
	if err := env.Metrics.WriteTextfile(c.Metrics.Textfile); err != nil {
		zap.L().Warn("metrics textfile not written", zap.Error(err))
	}

	zap.L().Info("export run finished",
		zap.String("run_id", runID),
		zap.String("status", string(summary.Status())),
		zap.Int("pdfs_generated", summary.PDFsGenerated),
		zap.Int("failures", len(summary.Failures)),
	)

	if opts.FailOnDegraded && summary.Degraded() {
		return eris.Errorf("export run degraded: %d failures", len(summary.Failures))
	}
	return nil
}

func startRun(ctx context.Context, env *exportEnv, firmID string) string {
	if env.Store == nil {
		return ""
	}
	run, err := env.Store.CreateRun(ctx, firmID)
	if err != nil {
		zap.L().Warn("run ledger: create run failed", zap.Error(err))
		return ""
	}
	return run.ID
}

func completeRun(ctx context.Context, env *exportEnv, runID string, summary *model.Summary) {
	if env.Store == nil || runID == "" {
		return
	}
	if err := env.Store.CompleteRun(context.WithoutCancel(ctx), runID, summary); err != nil {
		zap.L().Warn("run ledger: complete run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func abortRun(ctx context.Context, env *exportEnv, runID string, cause error) {
	if env.Store == nil || runID == "" {
		return
	}
	if err := env.Store.AbortRun(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		zap.L().Warn("run ledger: abort run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func writeReportFile(path, runID, firmID string, summary *model.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create report file %s", path)
	}
	if err := report.WriteYAML(f, runID, firmID, summary); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close report file %s", path)
}
