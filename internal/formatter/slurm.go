package formatter

import (
	"context"
	"fmt"
	"time"

	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// SlurmFormatter submits a task as a Slurm batch job via sbatch, passing
// the formatted command template as the wrapped script command. Resource
// requirements on the Task become --cpus-per-task and --gres=gpu:N.
type SlurmFormatter struct {
	timeout time.Duration
}

var _ Formatter = (*SlurmFormatter)(nil)

func (f *SlurmFormatter) Format(task *types.Task, parameters map[string]string) ([]string, error) {
	if task.CommandTemplate == "" {
		return nil, werrors.Validation("task %q has no command_template", task.Name)
	}
	line := substituteTemplate(task.CommandTemplate, parameters)
	cmd := splitArgv(line)
	if len(cmd) == 0 {
		return nil, werrors.Validation("task %q formatted to an empty command", task.Name)
	}

	argv := []string{"sbatch", "--wait", fmt.Sprintf("--cpus-per-task=%d", task.RequiredCPU)}
	if task.RequiredAccelerators > 0 {
		argv = append(argv, fmt.Sprintf("--gres=gpu:%d", task.RequiredAccelerators))
	}
	argv = append(argv, "--wrap", joinShell(cmd))
	return argv, nil
}

func (f *SlurmFormatter) Execute(ctx context.Context, argv []string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return execCommand(ctx, argv)
}

func joinShell(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
