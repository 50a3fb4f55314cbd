package formatter

import (
	"context"
	"time"

	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// CLIFormatter runs a task's command template directly as a local
// subprocess, substituting {param} placeholders from the job's parameter
// map. This is the default formatter.type.
type CLIFormatter struct {
	timeout time.Duration
}

var _ Formatter = (*CLIFormatter)(nil)

func (f *CLIFormatter) Format(task *types.Task, parameters map[string]string) ([]string, error) {
	if task.CommandTemplate == "" {
		return nil, werrors.Validation("task %q has no command_template", task.Name)
	}
	line := substituteTemplate(task.CommandTemplate, parameters)
	argv := splitArgv(line)
	if len(argv) == 0 {
		return nil, werrors.Validation("task %q formatted to an empty command", task.Name)
	}
	return argv, nil
}

func (f *CLIFormatter) Execute(ctx context.Context, argv []string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return execCommand(ctx, argv)
}
