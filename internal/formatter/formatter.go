// Package formatter implements the external command-formatter capability
// named in spec.md §4.6: translate a task's command template and a job's
// parameter map into an argv vector, then execute it and capture its
// outcome. Exec plumbing is grounded on the teacher's swappable
// commandExecutor pattern (cmd/vibecli/exec.go).
package formatter

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// Result is the outcome of executing one formatted command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the command exited zero.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Formatter turns a Task/Job pair into an argv vector and runs it. Each
// variant targets a different execution backend: direct CLI invocation,
// Slurm batch submission, or a container-runtime submission (runai).
type Formatter interface {
	// Format builds the argv vector for task with the given parameters.
	Format(task *types.Task, parameters map[string]string) ([]string, error)
	// Execute runs argv synchronously and captures its result.
	Execute(ctx context.Context, argv []string) (Result, error)
}

// execCommand is the package-level process runner, swappable in tests the
// same way the teacher's execCommand var is.
var execCommand = defaultExecCommand

func defaultExecCommand(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, werrors.Validation("empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Stdout: stdout.String(), Stderr: stderr.String()},
				werrors.Execution(err, "running %s", argv[0])
		}
	}

	return Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// substituteTemplate replaces {key} placeholders in template with the
// matching entry from parameters, left untouched if absent.
func substituteTemplate(template string, parameters map[string]string) string {
	out := template
	for k, v := range parameters {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// splitArgv tokenizes a formatted command line on whitespace. This is
// intentionally simple — task command templates are operator-authored,
// not user input, so shell-grade quoting isn't required here.
func splitArgv(line string) []string {
	return strings.Fields(line)
}

// New selects a Formatter by name (per spec.md §6's formatter.type config
// option): "cli" (default), "slurm", or "runai".
func New(kind string, timeout time.Duration) (Formatter, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	switch kind {
	case "", "cli":
		return &CLIFormatter{timeout: timeout}, nil
	case "slurm":
		return &SlurmFormatter{timeout: timeout}, nil
	case "runai":
		return &RunAIFormatter{timeout: timeout}, nil
	default:
		return nil, werrors.Validation("unknown formatter type %q", kind)
	}
}
