package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sbenjam1n/gridrun/internal/ctxlog"
)

// Commander launches a process and waits for it. A non-nil error means the
// process could not be run at all; otherwise exitCode is its status.
type Commander interface {
	Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ExecCommander runs commands with os/exec.
type ExecCommander struct{}

func (ExecCommander) Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// FakeCommander records invocations instead of running them. FakeFn, when
// set, decides the exit code and may create artifacts.
type FakeCommander struct {
	mu     sync.Mutex
	Calls  [][]string
	FakeFn func(argv []string) int
}

func (f *FakeCommander) Run(_ context.Context, argv []string, _, _ io.Writer) (int, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, append([]string(nil), argv...))
	f.mu.Unlock()
	if f.FakeFn != nil {
		return f.FakeFn(argv), nil
	}
	return 0, nil
}

// Runner is the single path through which external steps run. It echoes
// commands when asked, gates real execution on commit and turns any
// non-zero exit into a *StepError.
type Runner struct {
	Commander Commander
	Commit    bool
	ShowCmd   bool
	Stdout    io.Writer
	Stderr    io.Writer
}

// Run executes cmd and reports whether it actually ran. Outside commit mode
// only Preview commands run; the rest are logged.
func (r *Runner) Run(ctx context.Context, prefix string, cmd Command) (bool, error) {
	logger := ctxlog.FromContext(ctx)
	line := cmd.String()

	if r.ShowCmd {
		logger.Info(prefix+" Command.", "op", cmd.Op, "cmd", line)
	}
	if !r.Commit && !cmd.Preview {
		logger.Info(prefix+" Would run "+cmd.Op+".", "cmd", line)
		return false, nil
	}

	logger.Debug(prefix+" Running "+cmd.Op+".", "cmd", line)
	code, err := r.Commander.Run(ctx, cmd.Argv(), r.stdout(), r.stderr())
	if err != nil {
		logger.Error(prefix+" Failed to launch "+cmd.Op+".", "cmd", line, "error", err)
		return false, fmt.Errorf("launch %s: %w", cmd.Op, err)
	}
	if code != 0 {
		logger.Error(prefix+" "+cmd.Op+" returned a non-zero exit code.", "cmd", line, "exit_code", code)
		return true, &StepError{Op: cmd.Op, Command: line, ExitCode: code}
	}
	return true, nil
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}
