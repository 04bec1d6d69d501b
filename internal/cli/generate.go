package cli

import (
	"fmt"

	"github.com/sbenjam1n/gridrun/internal/experiment"
	"github.com/spf13/cobra"
)

// newGenerator is replaced in tests for deterministic seeds and timestamps.
var newGenerator = experiment.NewGenerator

var generateCmd = &cobra.Command{
	Use:   "generate <experiment>",
	Short: "Generate model configs and the experiment config from an outline",
	Long: `Reads experiments/<experiment>/experiment_outline.json and the baseline model
config it names, writes one model config per variable combination under
models/<experiment>/ and writes experiments/<experiment>/config.json.
Nothing is written if any combination fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]

		res, err := newGenerator().GenerateFromWorkspace(ctx, cfg.Layout(), name)
		if err != nil {
			return fmt.Errorf("generate %s: %w", name, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Generated %d model(s) for %s:\n", len(res.Models), name)
		for _, m := range res.Models {
			fmt.Fprintf(out, "  %s\n", m.Name)
		}
		fmt.Fprintf(out, "%d report(s). Experiment config: %s\n", len(res.Config.Reports), cfg.Layout().ExperimentConfigPath(name))
		return nil
	},
}
