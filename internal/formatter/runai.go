package formatter

import (
	"context"
	"fmt"
	"time"

	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// RunAIFormatter submits a task as a Run:ai training job via the runai
// CLI, requesting CPU and GPU counts from the Task's resource fields.
type RunAIFormatter struct {
	timeout time.Duration
}

var _ Formatter = (*RunAIFormatter)(nil)

func (f *RunAIFormatter) Format(task *types.Task, parameters map[string]string) ([]string, error) {
	if task.CommandTemplate == "" {
		return nil, werrors.Validation("task %q has no command_template", task.Name)
	}
	line := substituteTemplate(task.CommandTemplate, parameters)
	cmd := splitArgv(line)
	if len(cmd) == 0 {
		return nil, werrors.Validation("task %q formatted to an empty command", task.Name)
	}

	argv := []string{"runai", "submit", task.Name,
		"--cpu", fmt.Sprintf("%d", task.RequiredCPU),
	}
	if task.RequiredAccelerators > 0 {
		argv = append(argv, "--gpu", fmt.Sprintf("%d", task.RequiredAccelerators))
	}
	argv = append(argv, "--command", "--")
	argv = append(argv, cmd...)
	return argv, nil
}

func (f *RunAIFormatter) Execute(ctx context.Context, argv []string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return execCommand(ctx, argv)
}
