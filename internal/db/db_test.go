package db

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sbenjam1n/gridrun/migrations"
)

type fakeExec struct {
	stmts []string
	err   error
}

func (f *fakeExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, f.err
}

func TestMigrateOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql":    {Data: []byte("SELECT 2")},
		"001_initial.sql": {Data: []byte("SELECT 1")},
		"README":          {Data: []byte("not sql")},
	}
	exec := &fakeExec{}
	applied, err := Migrate(context.Background(), exec, fsys)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) != 2 || applied[0] != "001_initial.sql" || applied[1] != "002_more.sql" {
		t.Errorf("applied = %v", applied)
	}
	if len(exec.stmts) != 2 || exec.stmts[0] != "SELECT 1" {
		t.Errorf("stmts = %v", exec.stmts)
	}
}

func TestMigrateFailure(t *testing.T) {
	exec := &fakeExec{err: errors.New("syntax error")}
	if _, err := Migrate(context.Background(), exec, migrations.FS); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbeddedSchema(t *testing.T) {
	exec := &fakeExec{}
	applied, err := Migrate(context.Background(), exec, migrations.FS)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) == 0 || applied[0] != "001_initial.sql" {
		t.Errorf("applied = %v, want 001_initial.sql first", applied)
	}
}
