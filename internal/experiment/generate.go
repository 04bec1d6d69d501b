// Package experiment turns an outline into a generated experiment: one
// model config per variable combination, the model descriptors that point
// at them and the expanded report jobs.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"github.com/sbenjam1n/gridrun/internal/expand"
	"github.com/sbenjam1n/gridrun/internal/report"
	"github.com/sbenjam1n/gridrun/internal/workspace"
)

// GeneratedModel is a model descriptor together with its configuration.
type GeneratedModel struct {
	ModelDescriptor
	Combo  string
	Config *configtree.Tree
}

// Result is everything Generate produced; nothing has been written yet.
type Result struct {
	Experiment string
	Models     []GeneratedModel
	Config     *Config
}

// Generator builds experiments from outlines.
type Generator struct {
	Expander *expand.Expander
	Now      func() time.Time
}

// NewGenerator returns a Generator using random seeds and the wall clock.
func NewGenerator() *Generator {
	return &Generator{Expander: expand.New(), Now: time.Now}
}

// Generate expands the outline against the baseline. It validates the
// outline first and returns no partial result on failure.
func (g *Generator) Generate(ctx context.Context, experiment string, o *Outline, baseline *configtree.Tree) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outline: %w", err)
	}

	gen, err := g.Expander.Expand(baseline, o.Variables)
	if err != nil {
		return nil, fmt.Errorf("expand variables: %w", err)
	}
	logger.Info("Expanded outline variables.", "experiment", experiment, "combinations", len(gen))

	res := &Result{Experiment: experiment}
	names := make([]string, 0, len(gen))
	for _, c := range gen {
		md := ModelDescriptor{
			Name:  workspace.ModelName(experiment, c.Name),
			Tests: suffixTests(o.Tests, c.Name),
		}
		res.Models = append(res.Models, GeneratedModel{ModelDescriptor: md, Combo: c.Name, Config: c.Config})
		names = append(names, c.Name)
	}

	desc := o.Description
	if desc == "" {
		desc = fmt.Sprintf("Generated from the %s outline (%d models).", experiment, len(gen))
	}
	res.Config = &Config{
		Description:   desc,
		Reports:       report.Expand(ctx, o.Reports, names),
		FormatVersion: FormatVersion,
		Timestamp:     g.Now().UTC().Format(time.RFC3339),
	}
	for _, m := range res.Models {
		res.Config.Models = append(res.Config.Models, m.ModelDescriptor)
	}
	return res, nil
}

// suffixTests returns a fresh copy of tests with every tag suffixed by the
// combination name.
func suffixTests(tests []TestSpec, combo string) []TestSpec {
	out := make([]TestSpec, len(tests))
	for i, tc := range tests {
		out[i] = tc
		out[i].Tag = tc.Tag + "_" + combo
		out[i].Extra = tc.Extra.Clone()
	}
	return out
}

// Write persists every model config and then the experiment config. Model
// configs are staged next to their final path and only renamed into place
// once all of them encoded and wrote; on failure the staged files and any
// directories created for them are removed.
func Write(ctx context.Context, layout workspace.Layout, res *Result) error {
	logger := ctxlog.FromContext(ctx)

	var st staging
	for _, m := range res.Models {
		path := layout.ModelConfigPath(m.Name)
		if err := st.stage(m.Config, path); err != nil {
			st.abort()
			return fmt.Errorf("write model %s: %w", m.Name, err)
		}
	}
	if err := st.commit(); err != nil {
		st.abort()
		return err
	}
	for _, m := range res.Models {
		logger.Debug("Wrote model config.", "model", m.Name, "path", layout.ModelConfigPath(m.Name))
	}

	path := layout.ExperimentConfigPath(res.Experiment)
	if err := WriteConfig(path, res.Config); err != nil {
		return err
	}
	logger.Info("Wrote experiment config.", "path", path, "models", len(res.Models), "reports", len(res.Config.Reports))
	return nil
}

type staged struct {
	tmp, final string
}

type staging struct {
	files   []staged
	created []string // shallowest first
}

func (s *staging) stage(t *configtree.Tree, path string) error {
	dir := filepath.Dir(path)
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); !errors.Is(err, fs.ErrNotExist) || d == filepath.Dir(d) {
			break
		}
		missing = append(missing, d)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		s.created = append(s.created, missing[i])
	}

	tmp := filepath.Join(dir, ".tmp-"+filepath.Base(path))
	s.files = append(s.files, staged{tmp: tmp, final: path})
	return t.WriteFile(tmp)
}

func (s *staging) commit() error {
	for i, f := range s.files {
		if err := os.Rename(f.tmp, f.final); err != nil {
			s.files = s.files[i:]
			return fmt.Errorf("install %s: %w", f.final, err)
		}
	}
	s.files = nil
	return nil
}

func (s *staging) abort() {
	for _, f := range s.files {
		os.Remove(f.tmp)
	}
	for i := len(s.created) - 1; i >= 0; i-- {
		// Only empty directories go; anything renamed into place stays.
		os.Remove(s.created[i])
	}
}

// GenerateFromWorkspace loads the outline and baseline of an experiment,
// generates it and writes the result.
func (g *Generator) GenerateFromWorkspace(ctx context.Context, layout workspace.Layout, experiment string) (*Result, error) {
	o, err := LoadOutline(layout.OutlinePath(experiment))
	if err != nil {
		return nil, err
	}
	if o.BaselineConfig == "" {
		return nil, fmt.Errorf("invalid outline: baselineConfig is required")
	}
	baseline, err := configtree.Load(layout.ModelConfigPath(o.BaselineConfig))
	if err != nil {
		return nil, fmt.Errorf("load baseline %s: %w", o.BaselineConfig, err)
	}

	res, err := g.Generate(ctx, experiment, o, baseline)
	if err != nil {
		return nil, err
	}
	if err := Write(ctx, layout, res); err != nil {
		return nil, err
	}
	return res, nil
}
