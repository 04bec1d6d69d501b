package ledger

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sbenjam1n/gridrun/internal/pipeline"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs   []call
	execErr error
	rows    [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, call{sql: sql, args: args})
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return &fakeRows{rows: f.rows, idx: -1}, nil
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func TestRecorderLifecycle(t *testing.T) {
	db := &fakeDB{}
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := New(db)
	rec.now = func() time.Time { return finished }
	ctx := context.Background()

	run := pipeline.RunInfo{ID: "run-1", Experiment: "exp", Mode: pipeline.Mode{Commit: true}, Total: 3}
	require.NoError(t, rec.RunStarted(ctx, run))
	require.NoError(t, rec.StepFinished(ctx, pipeline.StepRecord{
		RunID: "run-1", Ordinal: 1, Total: 3, Phase: pipeline.PhaseTrain,
		Target: "exp/a", Outcome: pipeline.OutcomeRan, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, rec.RunFinished(ctx, run, errors.New("predict failed with exit code 2")))

	require.Len(t, db.execs, 3)
	require.True(t, strings.Contains(db.execs[0].sql, "INSERT INTO runs"))
	require.Equal(t, []any{"run-1", "exp", "commit", 3, time.Time{}, StatusRunning}, db.execs[0].args)

	step := db.execs[1].args
	require.Equal(t, "train", step[3])
	require.Equal(t, "ran", step[5])
	require.Equal(t, int64(1500), step[6])
	require.Nil(t, step[7])

	done := db.execs[2].args
	require.Equal(t, finished, done[1])
	require.Equal(t, StatusFailed, done[2])
	require.Equal(t, "predict failed with exit code 2", *(done[3].(*string)))
}

func TestRecorderSuccess(t *testing.T) {
	db := &fakeDB{}
	rec := New(db)
	require.NoError(t, rec.RunFinished(context.Background(), pipeline.RunInfo{ID: "r"}, nil))
	require.Equal(t, StatusSucceeded, db.execs[0].args[2])
	require.Nil(t, db.execs[0].args[3])
}

func TestRecorderExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection refused")}
	err := New(db).RunStarted(context.Background(), pipeline.RunInfo{ID: "r"})
	require.ErrorContains(t, err, "record run r")
	require.ErrorIs(t, err, db.execErr)
}

func TestRecent(t *testing.T) {
	started := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	ended := started.Add(time.Hour)
	msg := "boom"
	db := &fakeDB{rows: [][]any{
		{"r2", "exp", "commit", 9, int64(4), started, nil, StatusFailed, &msg},
		{"r1", "exp", "preview", 9, int64(9), started, &ended, StatusSucceeded, nil},
	}}

	runs, err := Recent(context.Background(), db, "exp", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r2", runs[0].ID)
	require.Equal(t, 4, runs[0].Completed)
	require.Nil(t, runs[0].FinishedAt)
	require.Equal(t, "boom", *runs[0].Error)
	require.Equal(t, ended, *runs[1].FinishedAt)
	require.Nil(t, runs[1].Error)
}
