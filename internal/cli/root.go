package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sbenjam1n/gridrun/internal/config"
	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"github.com/sbenjam1n/gridrun/internal/db"
	"github.com/sbenjam1n/gridrun/internal/events"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	logLevel  string
	logFormat string

	// commander runs the external toolchain; tests replace it.
	commander pipeline.Commander = pipeline.ExecCommander{}

	rootCmd = &cobra.Command{
		Use:   "gridrun",
		Short: "Expand experiment outlines into model grids and run them",
		Long: `gridrun turns an experiment outline (a baseline model config plus a set of
variables) into one model config per combination, then trains, evaluates and
reports on every generated model with the external toolchain.

Typical session:
  gridrun generate <experiment>
  gridrun run <experiment>            # preview
  gridrun run <experiment> --commit   # do it

Runs are idempotent: steps whose artifacts already exist are skipped.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// Execute runs the root command. Every failure is returned as an *ExitError
// with code -1.
func Execute() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return &ExitError{Code: -1, Message: err.Error()}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(eventsCmd)
}

// setup loads configuration and puts the logger in the command context.
func setup(cmd *cobra.Command, _ []string) error {
	switch logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown --log-format %q (want text or json)", logFormat)
	}
	logger := ctxlog.New(logLevel, logFormat, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("no database configured\nSet GRIDRUN_DATABASE_URL environment variable")
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w\nCheck GRIDRUN_DATABASE_URL environment variable", err)
	}
	return pool, nil
}

func connectRedis() (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("no redis configured\nSet GRIDRUN_REDIS_URL environment variable")
	}
	rdb, err := events.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w\nCheck GRIDRUN_REDIS_URL environment variable", err)
	}
	return rdb, nil
}
