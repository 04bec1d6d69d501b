package pipeline

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Phase is the pipeline stage a step belongs to.
type Phase string

const (
	PhaseTrain   Phase = "train"
	PhasePredict Phase = "predict"
	PhaseReport  Phase = "report"
)

// Outcome is what a step ended up doing.
type Outcome string

const (
	OutcomeRan       Outcome = "ran"
	OutcomeSkipped   Outcome = "skipped"
	OutcomePreviewed Outcome = "previewed"
	OutcomeRemoved   Outcome = "removed"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// RunInfo describes one orchestration run.
type RunInfo struct {
	ID         string
	Experiment string
	Mode       Mode
	Total      int
	StartedAt  time.Time
}

// StepRecord is emitted after every planned step.
type StepRecord struct {
	RunID    string
	Ordinal  int
	Total    int
	Phase    Phase
	Target   string
	Outcome  Outcome
	Duration time.Duration
	Error    string
}

// Observer receives run progress. Observer errors are logged by the
// orchestrator and never abort a run.
type Observer interface {
	RunStarted(ctx context.Context, run RunInfo) error
	StepFinished(ctx context.Context, step StepRecord) error
	RunFinished(ctx context.Context, run RunInfo, runErr error) error
}

// Observers fans out to several observers.
type Observers []Observer

func (obs Observers) RunStarted(ctx context.Context, run RunInfo) error {
	var result *multierror.Error
	for _, o := range obs {
		if err := o.RunStarted(ctx, run); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (obs Observers) StepFinished(ctx context.Context, step StepRecord) error {
	var result *multierror.Error
	for _, o := range obs {
		if err := o.StepFinished(ctx, step); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (obs Observers) RunFinished(ctx context.Context, run RunInfo, runErr error) error {
	var result *multierror.Error
	for _, o := range obs {
		if err := o.RunFinished(ctx, run, runErr); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
