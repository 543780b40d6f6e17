package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/config"
	"github.com/forPelevin/recut/internal/ledger"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			limit, _ := cmd.Flags().GetInt("limit")

			l, err := ledger.Open(cfg.Paths.LedgerPath())
			if err != nil {
				return err
			}
			defer l.Close()

			runs, err := l.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tMODE\tSTATUS\tCLIPS\tTOTAL MS\tRELAXATION\tSTARTED")
			for _, r := range runs {
				status := r.Status
				if r.ErrorKind != "" {
					status += " (" + r.ErrorKind + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.RunID, r.Mode, status, r.Clips, r.TotalDurationMS, orDash(r.LastRelaxation),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
