package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/shlex"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
	"github.com/sbenjam1n/gridrun/internal/workspace"
)

// Config holds all configuration for the gridrun CLI.
type Config struct {
	// DatabaseURL and RedisURL are optional; when empty the run ledger and
	// step events are disabled.
	DatabaseURL string
	RedisURL    string
	Workspace   string
	DataRoot    string
	ModelFile   string

	TrainCmd   string
	PredictCmd string
	ROCCmd     string
	SummaryCmd string

	// Workers overrides the numWorkers hint of model configs when > 0.
	Workers int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	ws, err := filepath.Abs(getEnv("GRIDRUN_WORKSPACE", wd))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("GRIDRUN_DATABASE_URL"),
		RedisURL:    os.Getenv("GRIDRUN_REDIS_URL"),
		Workspace:   ws,
		DataRoot:    getEnv("GRIDRUN_DATA_ROOT", filepath.Join(ws, "data")),
		ModelFile:   getEnv("GRIDRUN_MODEL_FILE", workspace.DefaultModelFile),
		TrainCmd:    getEnv("GRIDRUN_TRAIN_CMD", "jb_train"),
		PredictCmd:  getEnv("GRIDRUN_PREDICT_CMD", "jb_make_predictions"),
		ROCCmd:      getEnv("GRIDRUN_ROC_CMD", "jb_plot_roc"),
		SummaryCmd:  getEnv("GRIDRUN_SUMMARY_CMD", "jb_summary_report"),
	}

	if v := os.Getenv("GRIDRUN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("GRIDRUN_WORKERS must be a non-negative integer, got %q", v)
		}
		cfg.Workers = n
	}
	return cfg, nil
}

// Layout resolves workspace paths for this configuration.
func (c *Config) Layout() workspace.Layout {
	return workspace.Layout{Root: c.Workspace, DataRoot: c.DataRoot, ModelFile: c.ModelFile}
}

// Toolchain splits the configured command lines into the external tool
// invocations.
func (c *Config) Toolchain() (pipeline.Toolchain, error) {
	tools := pipeline.Toolchain{Workspace: c.Workspace, DataRoot: c.DataRoot}
	for _, tc := range []struct {
		env  string
		line string
		dst  *[]string
	}{
		{"GRIDRUN_TRAIN_CMD", c.TrainCmd, &tools.Train},
		{"GRIDRUN_PREDICT_CMD", c.PredictCmd, &tools.Predict},
		{"GRIDRUN_ROC_CMD", c.ROCCmd, &tools.PlotROC},
		{"GRIDRUN_SUMMARY_CMD", c.SummaryCmd, &tools.Summary},
	} {
		argv, err := shlex.Split(tc.line)
		if err != nil {
			return pipeline.Toolchain{}, fmt.Errorf("parse %s: %w", tc.env, err)
		}
		if len(argv) == 0 {
			return pipeline.Toolchain{}, fmt.Errorf("%s is empty", tc.env)
		}
		*tc.dst = argv
	}
	return tools, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
