package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sbenjam1n/gridrun/internal/ledger"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <experiment>",
	Short: "List recorded runs of an experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := ledger.Recent(ctx, pool, args[0], historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Runs of %s:\n", args[0])
		if len(runs) == 0 {
			fmt.Fprintln(out, "  (none)")
			return nil
		}
		for _, r := range runs {
			took := "running"
			if r.FinishedAt != nil {
				took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(out, "  %s  %-9s %-16s %d/%d steps  %s (%s)\n",
				r.ID, r.Status, r.Mode, r.Completed, r.Total, humanize.Time(r.StartedAt), took)
			if r.Error != nil {
				fmt.Fprintf(out, "    %s\n", *r.Error)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
}
