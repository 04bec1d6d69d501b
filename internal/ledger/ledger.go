// Package ledger records orchestration runs and their steps in PostgreSQL so
// that past runs of an experiment can be listed later.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
)

const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// DB is the subset of pgxpool.Pool the ledger uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Recorder writes run progress to the runs and steps tables. It implements
// pipeline.Observer.
type Recorder struct {
	db  DB
	now func() time.Time
}

// New creates a Recorder on db.
func New(db DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

var _ pipeline.Observer = (*Recorder)(nil)

func (r *Recorder) RunStarted(ctx context.Context, run pipeline.RunInfo) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO runs (id, experiment, mode, total_steps, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.Experiment, run.Mode.String(), run.Total, run.StartedAt, StatusRunning)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

func (r *Recorder) StepFinished(ctx context.Context, step pipeline.StepRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO steps (run_id, ordinal, total, phase, target, outcome, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, step.RunID, step.Ordinal, step.Total, string(step.Phase), step.Target, string(step.Outcome),
		step.Duration.Milliseconds(), nullable(step.Error))
	if err != nil {
		return fmt.Errorf("record step %d of run %s: %w", step.Ordinal, step.RunID, err)
	}
	return nil
}

func (r *Recorder) RunFinished(ctx context.Context, run pipeline.RunInfo, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	_, err := r.db.Exec(ctx, `
		UPDATE runs SET finished_at = $2, status = $3, error = $4 WHERE id = $1
	`, run.ID, r.now(), status, nullable(msg))
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Run is one row of run history.
type Run struct {
	ID         string
	Experiment string
	Mode       string
	Total      int
	Completed  int
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      *string
}

// Recent lists the latest runs of experiment, newest first.
func Recent(ctx context.Context, db DB, experiment string, limit int) ([]Run, error) {
	rows, err := db.Query(ctx, `
		SELECT r.id::text, r.experiment, r.mode, r.total_steps,
		       (SELECT count(*) FROM steps s WHERE s.run_id = r.id),
		       r.started_at, r.finished_at, r.status, r.error
		FROM runs r
		WHERE r.experiment = $1
		ORDER BY r.started_at DESC
		LIMIT $2
	`, experiment, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			completed int64
		)
		if err := rows.Scan(&run.ID, &run.Experiment, &run.Mode, &run.Total, &completed,
			&run.StartedAt, &run.FinishedAt, &run.Status, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Completed = int(completed)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
