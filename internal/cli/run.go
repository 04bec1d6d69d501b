package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"github.com/sbenjam1n/gridrun/internal/events"
	"github.com/sbenjam1n/gridrun/internal/experiment"
	"github.com/sbenjam1n/gridrun/internal/ledger"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
	"github.com/spf13/cobra"
)

var runMode pipeline.Mode

var runCmd = &cobra.Command{
	Use:   "run <experiment>",
	Short: "Train, predict and report on every model of a generated experiment",
	Long: `Runs the generated experiment: trains every model, makes predictions for
every (model, test) pair and renders every report. Without --commit each step
is only described. Steps whose artifacts exist are skipped.

  --clean    remove the artifacts a normal run produces (with --commit)
  --dryrun   ask the trainer for a dry run of every model; nothing else runs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]
		logger := ctxlog.FromContext(ctx)

		if err := runMode.Validate(); err != nil {
			return err
		}

		layout := cfg.Layout()
		expCfg, err := experiment.LoadConfig(layout.ExperimentConfigPath(name))
		if err != nil {
			return fmt.Errorf("%w\nRun: gridrun generate %s", err, name)
		}
		tools, err := cfg.Toolchain()
		if err != nil {
			return err
		}

		observer, closeAll := openObservers(ctx)
		defer closeAll()

		runner := &pipeline.Runner{
			Commander: commander,
			Stdout:    cmd.OutOrStdout(),
			Stderr:    cmd.ErrOrStderr(),
		}
		orch := pipeline.New(layout, tools, runner, observer, pipeline.Options{Mode: runMode, Workers: cfg.Workers})
		if err := orch.Run(ctx, name, expCfg); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}

		if !runMode.Commit && !runMode.DryRun {
			logger.Info("Preview only. Re-run with --commit to apply.")
		}
		return nil
	},
}

// openObservers connects whichever of the ledger and the event stream are
// configured. Connection failures are logged and the sink is left out.
func openObservers(ctx context.Context) (pipeline.Observer, func()) {
	logger := ctxlog.FromContext(ctx)
	var (
		obs     pipeline.Observers
		closers []io.Closer
	)

	if cfg.DatabaseURL != "" {
		pool, err := connectDB(ctx)
		if err != nil {
			logger.Warn("Run ledger disabled.", "error", err)
		} else {
			obs = append(obs, ledger.New(pool))
			closers = append(closers, closerFunc(pool.Close))
		}
	}

	if cfg.RedisURL != "" {
		rdb, err := connectRedis()
		if err != nil {
			logger.Warn("Step events disabled.", "error", err)
		} else {
			obs = append(obs, events.New(rdb))
			closers = append(closers, rdb)
		}
	}

	return obs, func() {
		for _, c := range closers {
			c.Close()
		}
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runMode.Commit, "commit", false, "Apply changes instead of previewing them")
	runCmd.Flags().BoolVar(&runMode.Clean, "clean", false, "Remove generated artifacts instead of producing them")
	runCmd.Flags().BoolVar(&runMode.DryRun, "dryrun", false, "Ask the trainer for a dry run of each model")
	runCmd.Flags().BoolVar(&runMode.ShowCmd, "showcmd", false, "Print every external command")
}
