package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/silverfin-export/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "silverfin-export",
	Short: "Bulk PDF export of closed fiscal years from Silverfin",
	Long:  "Pages through every company of a Silverfin firm, selects its most recent closed fiscal years, and downloads a PDF export for each into a local directory.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
