package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModeConflict is returned when dry-run is combined with commit or clean.
	ErrModeConflict = errors.New("--dryrun cannot be combined with --commit or --clean")
	// ErrInvalidDocument means a model config or dataset file is unreadable
	// or not structured data.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrMissingDataset means a test references a dataset file that does not exist.
	ErrMissingDataset = errors.New("dataset file not found")
	// ErrUnknownTag means a report references a test tag no model produces.
	ErrUnknownTag = errors.New("report references unknown test tag")
)

// StepError reports an external collaborator that exited non-zero.
type StepError struct {
	Op       string
	Command  string
	ExitCode int
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Op, e.ExitCode, e.Command)
}

// Mode selects what a run does. Commit applies effects instead of previewing
// them, Clean removes artifacts instead of producing them, DryRun asks the
// trainer for a preview of each model and stops after training.
type Mode struct {
	Commit  bool
	Clean   bool
	DryRun  bool
	ShowCmd bool
}

// Validate rejects flag combinations that cannot run.
func (m Mode) Validate() error {
	if m.DryRun && (m.Commit || m.Clean) {
		return ErrModeConflict
	}
	return nil
}

func (m Mode) String() string {
	var parts []string
	if m.Commit {
		parts = append(parts, "commit")
	} else {
		parts = append(parts, "preview")
	}
	if m.Clean {
		parts = append(parts, "clean")
	}
	if m.DryRun {
		parts = append(parts, "dryrun")
	}
	return strings.Join(parts, ",")
}
