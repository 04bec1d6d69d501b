package pipeline

import (
	"strconv"
	"strings"
)

// Flag is a command-line option. Bool flags carry no value.
type Flag struct {
	Name  string
	Value string
	Bool  bool
}

// Command describes one external collaborator invocation.
type Command struct {
	// Op names the operation for logs and errors: train, predict, plot-roc, summary.
	Op      string
	Program []string
	Flags   []Flag
	Args    []string
	// Preview marks invocations that are safe to execute without --commit,
	// such as the trainer's own dry-run mode.
	Preview bool
}

// Argv renders program, flags then positional arguments.
func (c Command) Argv() []string {
	argv := append([]string(nil), c.Program...)
	for _, f := range c.Flags {
		argv = append(argv, f.Name)
		if !f.Bool {
			argv = append(argv, f.Value)
		}
	}
	return append(argv, c.Args...)
}

// String renders the command as it would be typed in a shell.
func (c Command) String() string {
	argv := c.Argv()
	out := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\n\"'\\$`") {
			out[i] = strconv.Quote(a)
		} else {
			out[i] = a
		}
	}
	return strings.Join(out, " ")
}
