// Package pipeline drives the external toolchain through a generated
// experiment: train every model, predict every (model, test) pair, then run
// every report. Steps run one at a time and are skipped when their artifact
// already exists, so re-running after a failure picks up where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sbenjam1n/gridrun/internal/configtree"
	"github.com/sbenjam1n/gridrun/internal/ctxlog"
	"github.com/sbenjam1n/gridrun/internal/experiment"
	"github.com/sbenjam1n/gridrun/internal/report"
	"github.com/sbenjam1n/gridrun/internal/workspace"
)

// State is the orchestrator's position in a run.
type State string

const (
	StateLoaded    State = "LOADED"
	StateSized     State = "SIZED"
	StateCleaned   State = "CLEANED"
	StateTrained   State = "TRAINED"
	StatePredicted State = "PREDICTED"
	StateReported  State = "REPORTED"
	StateDone      State = "DONE"
)

// workersHint is read from a model config when no worker count is configured.
var workersHint = configtree.MustParsePath("hints.numWorkers")

// Options configures an Orchestrator.
type Options struct {
	Mode Mode
	// Workers overrides the numWorkers hint of every model config when > 0.
	Workers int
}

// Orchestrator runs one experiment.
type Orchestrator struct {
	layout   workspace.Layout
	tools    Toolchain
	runner   *Runner
	observer Observer
	opts     Options

	counter StepCounter
	state   State
	run     RunInfo
	now     func() time.Time
}

// New builds an orchestrator. A nil observer records nothing.
func New(layout workspace.Layout, tools Toolchain, runner *Runner, observer Observer, opts Options) *Orchestrator {
	if observer == nil {
		observer = Observers(nil)
	}
	runner.Commit = opts.Mode.Commit
	runner.ShowCmd = opts.Mode.ShowCmd
	return &Orchestrator{
		layout:   layout,
		tools:    tools,
		runner:   runner,
		observer: observer,
		opts:     opts,
		state:    StateLoaded,
		now:      time.Now,
	}
}

// State reports how far the last run got.
func (o *Orchestrator) State() State { return o.state }

// Counter exposes the step counter of the last run.
func (o *Orchestrator) Counter() *StepCounter { return &o.counter }

// Run executes the experiment. The first failing step aborts the run;
// artifacts from earlier steps are left in place.
func (o *Orchestrator) Run(ctx context.Context, experimentName string, cfg *experiment.Config) (err error) {
	logger := ctxlog.FromContext(ctx)
	mode := o.opts.Mode
	if err := mode.Validate(); err != nil {
		return err
	}

	o.counter.SizeFor(len(cfg.Models), cfg.TestPairs(), len(cfg.Reports), mode.DryRun)
	o.transition(ctx, StateSized)
	o.run = RunInfo{
		ID:         uuid.NewString(),
		Experiment: experimentName,
		Mode:       mode,
		Total:      o.counter.Total(),
		StartedAt:  o.now(),
	}
	logger.Info("Starting experiment run.", "experiment", experimentName, "run_id", o.run.ID, "mode", mode.String(), "steps", o.counter.Total())
	o.notify(ctx, o.observer.RunStarted(ctx, o.run))
	defer func() {
		o.notify(ctx, o.observer.RunFinished(ctx, o.run, err))
	}()

	if err := o.trainAll(ctx, cfg); err != nil {
		return err
	}
	if mode.DryRun {
		o.transition(ctx, StateDone)
		return nil
	}
	if err := o.predictAll(ctx, cfg); err != nil {
		return err
	}
	if err := o.reportAll(ctx, experimentName, cfg); err != nil {
		return err
	}
	o.transition(ctx, StateDone)
	logger.Info("Experiment run finished.", "experiment", experimentName, "run_id", o.run.ID)
	return nil
}

func (o *Orchestrator) trainAll(ctx context.Context, cfg *experiment.Config) error {
	for _, m := range cfg.Models {
		if err := o.train(ctx, m); err != nil {
			return err
		}
	}
	if o.opts.Mode.Clean {
		o.transition(ctx, StateCleaned)
	}
	o.transition(ctx, StateTrained)
	return nil
}

func (o *Orchestrator) train(ctx context.Context, m experiment.ModelDescriptor) error {
	logger := ctxlog.FromContext(ctx)
	prefix := o.counter.Advance()
	start := o.now()
	mode := o.opts.Mode

	tree, err := configtree.Load(o.layout.ModelConfigPath(m.Name))
	if err != nil {
		err = fmt.Errorf("%w: model %s: %w", ErrInvalidDocument, m.Name, err)
		logger.Error(prefix+" Model config is missing or invalid.", "model", m.Name, "error", err)
		o.step(ctx, PhaseTrain, m.Name, OutcomeFailed, start, err)
		return err
	}

	if mode.Clean {
		outcome, err := o.removeArtifacts(ctx, prefix, o.layout.TrainingArtifacts(m.Name))
		o.step(ctx, PhaseTrain, m.Name, outcome, start, err)
		return err
	}

	workers := o.workers(ctx, tree)
	if mode.DryRun {
		logger.Info(prefix+" Dry run of training.", "model", m.Name)
		return o.execute(ctx, prefix, PhaseTrain, m.Name, start, o.tools.TrainCommand(m.Name, true, workers))
	}

	if exists(o.layout.TrainedModelPath(m.Name)) {
		logger.Info(prefix+" Model already trained, skipping.", "model", m.Name)
		o.step(ctx, PhaseTrain, m.Name, OutcomeSkipped, start, nil)
		return nil
	}

	logger.Info(prefix+" Training model.", "model", m.Name)
	return o.execute(ctx, prefix, PhaseTrain, m.Name, start, o.tools.TrainCommand(m.Name, false, workers))
}

func (o *Orchestrator) predictAll(ctx context.Context, cfg *experiment.Config) error {
	for _, m := range cfg.Models {
		for _, tc := range m.Tests {
			if err := o.predict(ctx, m.Name, tc); err != nil {
				return err
			}
		}
	}
	o.transition(ctx, StatePredicted)
	return nil
}

func (o *Orchestrator) predict(ctx context.Context, model string, tc experiment.TestSpec) error {
	logger := ctxlog.FromContext(ctx)
	prefix := o.counter.Advance()
	start := o.now()
	target := model + ":" + tc.Tag

	if _, err := configtree.Load(o.layout.DatasetPath(tc.DatasetPath)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s (test %s)", ErrMissingDataset, tc.DatasetPath, tc.Tag)
		} else {
			err = fmt.Errorf("%w: dataset %s: %w", ErrInvalidDocument, tc.DatasetPath, err)
		}
		logger.Error(prefix+" Dataset is missing or invalid.", "dataset", tc.DatasetPath, "error", err)
		o.step(ctx, PhasePredict, target, OutcomeFailed, start, err)
		return err
	}

	out := o.layout.PredictionPath(model, tc.DatasetPath)
	if o.opts.Mode.Clean {
		outcome, err := o.removeArtifacts(ctx, prefix, []string{out})
		o.step(ctx, PhasePredict, target, outcome, start, err)
		return err
	}

	if exists(out) {
		logger.Info(prefix+" Predictions exist, skipping.", "model", model, "dataset", tc.DatasetPath)
		o.step(ctx, PhasePredict, target, OutcomeSkipped, start, nil)
		return nil
	}

	logger.Info(prefix+" Making predictions.", "model", model, "dataset", tc.DatasetPath, "topk", tc.Classify)
	return o.execute(ctx, prefix, PhasePredict, target, start, o.tools.PredictCommand(model, tc.DatasetPath, tc.Classify))
}

func (o *Orchestrator) reportAll(ctx context.Context, experimentName string, cfg *experiment.Config) error {
	predictions := map[string]string{}
	var allPredictions []string
	for _, m := range cfg.Models {
		for _, tc := range m.Tests {
			p := o.layout.PredictionPath(m.Name, tc.DatasetPath)
			predictions[tc.Tag] = p
			allPredictions = append(allPredictions, p)
		}
	}

	for _, job := range cfg.Reports {
		if err := o.report(ctx, experimentName, job, predictions, allPredictions); err != nil {
			return err
		}
	}
	o.transition(ctx, StateReported)
	return nil
}

func (o *Orchestrator) report(ctx context.Context, experimentName string, job report.Job, predictions map[string]string, all []string) error {
	logger := ctxlog.FromContext(ctx)
	prefix := o.counter.Advance()
	start := o.now()
	target := job.Type + ":" + job.OutputName

	var (
		cmd     Command
		outputs []string
	)
	switch job.Type {
	case report.TypePlotROC:
		var files []string
		for _, tr := range job.Tests {
			p, ok := predictions[tr.Tag]
			if !ok {
				err := fmt.Errorf("%w: %q in %s", ErrUnknownTag, tr.Tag, job.OutputName)
				o.step(ctx, PhaseReport, target, OutcomeFailed, start, err)
				return err
			}
			files = append(files, p)
		}
		output := o.layout.ReportPath(experimentName, job.OutputName)
		outputs = []string{output}
		cmd = o.tools.PlotROCCommand(files, job.Classes, job.PlotTitle, output)
	case report.TypeSummary:
		md := o.layout.ReportPath(experimentName, job.OutputName)
		outputs = []string{md}
		var csv string
		if job.CSV != "" {
			csv = o.layout.ReportPath(experimentName, job.CSV)
			outputs = append(outputs, csv)
		}
		cmd = o.tools.SummaryCommand(all, md, csv)
	default:
		logger.Error(prefix+" Unsupported report type, skipping.", "type", job.Type)
		o.step(ctx, PhaseReport, target, OutcomeDropped, start, nil)
		return nil
	}

	if o.opts.Mode.Clean {
		outcome, err := o.removeArtifacts(ctx, prefix, outputs)
		o.step(ctx, PhaseReport, target, outcome, start, err)
		return err
	}

	if allExist(outputs) {
		logger.Info(prefix+" Report exists, skipping.", "output", job.OutputName)
		o.step(ctx, PhaseReport, target, OutcomeSkipped, start, nil)
		return nil
	}

	logger.Info(prefix+" Generating report.", "type", job.Type, "output", job.OutputName)
	return o.execute(ctx, prefix, PhaseReport, target, start, cmd)
}

// execute runs cmd through the runner and records the step.
func (o *Orchestrator) execute(ctx context.Context, prefix string, phase Phase, target string, start time.Time, cmd Command) error {
	ran, err := o.runner.Run(ctx, prefix, cmd)
	switch {
	case err != nil:
		o.step(ctx, phase, target, OutcomeFailed, start, err)
	case ran:
		o.step(ctx, phase, target, OutcomeRan, start, nil)
	default:
		o.step(ctx, phase, target, OutcomePreviewed, start, nil)
	}
	return err
}

// removeArtifacts deletes the given files when committing and only reports
// them otherwise. Absent files are ignored.
func (o *Orchestrator) removeArtifacts(ctx context.Context, prefix string, paths []string) (Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	found := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return OutcomeFailed, fmt.Errorf("stat %s: %w", p, err)
		}
		found++
		size := humanize.Bytes(uint64(info.Size()))
		if !o.opts.Mode.Commit {
			logger.Info(prefix+" Would remove artifact.", "path", p, "size", size)
			continue
		}
		if err := os.Remove(p); err != nil {
			return OutcomeFailed, fmt.Errorf("remove %s: %w", p, err)
		}
		logger.Info(prefix+" Removed artifact.", "path", p, "size", size)
	}
	if found == 0 {
		logger.Info(prefix + " Nothing to clean.")
		return OutcomeSkipped, nil
	}
	if !o.opts.Mode.Commit {
		return OutcomePreviewed, nil
	}
	return OutcomeRemoved, nil
}

// workers picks the trainer worker count: the configured override, else the
// model's numWorkers hint, else 0 to leave the trainer's default.
func (o *Orchestrator) workers(ctx context.Context, tree *configtree.Tree) int {
	if o.opts.Workers > 0 {
		return o.opts.Workers
	}
	v, err := tree.Get(workersHint)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	ctxlog.FromContext(ctx).Warn("Ignoring non-numeric worker hint.", "value", v)
	return 0
}

func (o *Orchestrator) step(ctx context.Context, phase Phase, target string, outcome Outcome, start time.Time, err error) {
	rec := StepRecord{
		RunID:    o.run.ID,
		Ordinal:  o.counter.Step(),
		Total:    o.counter.Total(),
		Phase:    phase,
		Target:   target,
		Outcome:  outcome,
		Duration: o.now().Sub(start),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	o.notify(ctx, o.observer.StepFinished(ctx, rec))
}

func (o *Orchestrator) transition(ctx context.Context, s State) {
	ctxlog.FromContext(ctx).Debug("Pipeline state changed.", "from", o.state, "to", s)
	o.state = s
}

func (o *Orchestrator) notify(ctx context.Context, err error) {
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Run observer failed.", "error", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if !exists(p) {
			return false
		}
	}
	return true
}
