package formatter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/types"
)

func withStubExec(t *testing.T, result Result, err error) *[]string {
	t.Helper()
	var gotArgv []string
	prev := execCommand
	execCommand = func(ctx context.Context, argv []string) (Result, error) {
		gotArgv = argv
		return result, err
	}
	t.Cleanup(func() { execCommand = prev })
	return &gotArgv
}

func TestCLIFormatter_FormatSubstitutesParameters(t *testing.T) {
	f := &CLIFormatter{timeout: time.Second}
	task := &types.Task{Name: "train", CommandTemplate: "train.sh --lr {lr} --epochs {epochs}"}

	argv, err := f.Format(task, map[string]string{"lr": "0.01", "epochs": "10"})
	require.NoError(t, err)
	require.Equal(t, []string{"train.sh", "--lr", "0.01", "--epochs", "10"}, argv)
}

func TestCLIFormatter_FormatRejectsEmptyTemplate(t *testing.T) {
	f := &CLIFormatter{timeout: time.Second}
	_, err := f.Format(&types.Task{Name: "train"}, nil)
	require.Error(t, err)
}

func TestCLIFormatter_ExecuteDelegatesToExecCommand(t *testing.T) {
	gotArgv := withStubExec(t, Result{ExitCode: 0, Stdout: "ok"}, nil)

	f := &CLIFormatter{timeout: time.Second}
	res, err := f.Execute(context.Background(), []string{"train.sh", "--lr", "0.01"})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, "ok", res.Stdout)
	require.Equal(t, []string{"train.sh", "--lr", "0.01"}, *gotArgv)
}

func TestResult_Succeeded(t *testing.T) {
	require.True(t, Result{ExitCode: 0}.Succeeded())
	require.False(t, Result{ExitCode: 1}.Succeeded())
}

func TestSlurmFormatter_FormatBuildsSbatchArgv(t *testing.T) {
	f := &SlurmFormatter{timeout: time.Second}
	task := &types.Task{Name: "train", CommandTemplate: "train.sh --lr {lr}", RequiredCPU: 4, RequiredAccelerators: 2}

	argv, err := f.Format(task, map[string]string{"lr": "0.1"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"sbatch", "--wait", "--cpus-per-task=4", "--gres=gpu:2", "--wrap", "train.sh --lr 0.1",
	}, argv)
}

func TestSlurmFormatter_FormatOmitsGresWithoutAccelerators(t *testing.T) {
	f := &SlurmFormatter{timeout: time.Second}
	task := &types.Task{Name: "train", CommandTemplate: "train.sh", RequiredCPU: 1}

	argv, err := f.Format(task, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"sbatch", "--wait", "--cpus-per-task=1", "--wrap", "train.sh"}, argv)
}

func TestRunAIFormatter_FormatBuildsSubmitArgv(t *testing.T) {
	f := &RunAIFormatter{timeout: time.Second}
	task := &types.Task{Name: "train", CommandTemplate: "train.sh", RequiredCPU: 2, RequiredAccelerators: 1}

	argv, err := f.Format(task, nil)
	require.NoError(t, err)
	require.Equal(t, []string{
		"runai", "submit", "train", "--cpu", "2", "--gpu", "1", "--command", "--", "train.sh",
	}, argv)
}

func TestNew_SelectsFormatterByKind(t *testing.T) {
	cases := map[string]any{
		"":      &CLIFormatter{},
		"cli":   &CLIFormatter{},
		"slurm": &SlurmFormatter{},
		"runai": &RunAIFormatter{},
	}
	for kind, want := range cases {
		f, err := New(kind, 0)
		require.NoError(t, err)
		require.IsType(t, want, f)
	}

	_, err := New("bogus", 0)
	require.Error(t, err)
}
