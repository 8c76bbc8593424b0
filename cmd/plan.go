package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/silverfin-export/internal/batch"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the periods an export run would produce, without exporting",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initExport(ctx, cfg, batch.Hooks{})
		if err != nil {
			return err
		}
		defer env.Close()

		plans, err := env.Orchestrator.Plan(ctx)
		if err != nil {
			return eris.Wrap(err, "plan")
		}

		formatPlan(os.Stdout, plans)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}

// formatPlan writes one row per company with its selected period end dates
// or the reason it would be skipped.
func formatPlan(out io.Writer, plans []batch.CompanyPlan) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tEXPORTS\tPERIODS")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t-------")

	exports, skipped := 0, 0
	for _, p := range plans {
		name := p.Company.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}

		detail := ""
		if p.Error != "" {
			skipped++
			detail = fmt.Sprintf("skipped (%s): %s", p.Kind, p.Error)
		} else {
			ends := make([]string, len(p.Selected))
			for i, s := range p.Selected {
				ends[i] = s.Period.EndDate
			}
			detail = strings.Join(ends, ", ")
			exports += len(p.Selected)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", p.Company.ID, name, len(p.Selected), detail)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d companies, %d exports planned, %d skipped\n", len(plans), exports, skipped)
}
