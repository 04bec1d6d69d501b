package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbenjam1n/gridrun/internal/db"
	"github.com/sbenjam1n/gridrun/internal/events"
	"github.com/sbenjam1n/gridrun/migrations"
	"github.com/spf13/cobra"
)

var minimal bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a gridrun workspace",
	Long:  "Initialize workspace: models/, experiments/, data root, PostgreSQL run ledger, Redis step stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		for _, dir := range []string{
			filepath.Join(cfg.Workspace, "models"),
			filepath.Join(cfg.Workspace, "experiments"),
			cfg.DataRoot,
		} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		fmt.Fprintf(out, "Workspace ready at %s\n", cfg.Workspace)

		if minimal {
			fmt.Fprintln(out, "\nMinimal init complete. Run 'gridrun init' (without --minimal) to set up PostgreSQL and Redis.")
			return nil
		}

		if cfg.DatabaseURL != "" {
			fmt.Fprintln(out, "Connecting to PostgreSQL...")
			pool, err := connectDB(ctx)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool, migrations.FS)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Run ledger schema ready (%d migration file(s))\n", len(applied))
		} else {
			fmt.Fprintln(out, "GRIDRUN_DATABASE_URL not set, skipping run ledger")
		}

		if cfg.RedisURL != "" {
			fmt.Fprintln(out, "Connecting to Redis...")
			rdb, err := connectRedis()
			if err != nil {
				return fmt.Errorf("redis connection failed: %w", err)
			}
			defer rdb.Close()

			if err := events.New(rdb).EnsureStream(ctx); err != nil {
				return fmt.Errorf("redis stream setup failed: %w", err)
			}
			fmt.Fprintf(out, "Redis stream %s ready\n", events.StreamSteps)
		} else {
			fmt.Fprintln(out, "GRIDRUN_REDIS_URL not set, skipping step events")
		}

		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "  1. Put a baseline model config in models/<baseline>/config.json")
		fmt.Fprintln(out, "  2. Write experiments/<name>/experiment_outline.json")
		fmt.Fprintln(out, "  3. Run: gridrun generate <name>")
		fmt.Fprintln(out, "  4. Run: gridrun run <name> --commit")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&minimal, "minimal", false, "Minimal init: workspace directories only")
}
