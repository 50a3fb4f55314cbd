package worker_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/client"
	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/formatter"
	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/server"
	"github.com/whatsnext/whatsnext/internal/store/memory"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
	"github.com/whatsnext/whatsnext/internal/worker"
)

// stubFormatter always succeeds, recording the jobs it was asked to run.
type stubFormatter struct {
	ran []string
	err error
}

func (f *stubFormatter) Format(task *types.Task, parameters map[string]string) ([]string, error) {
	return []string{"echo", task.Name}, nil
}

func (f *stubFormatter) Execute(ctx context.Context, argv []string) (formatter.Result, error) {
	f.ran = append(f.ran, argv[len(argv)-1])
	if f.err != nil {
		return formatter.Result{ExitCode: 1}, f.err
	}
	return formatter.Result{ExitCode: 0}, nil
}

func newTestBroker(t *testing.T) (*client.Client, *types.Project, *types.Task) {
	t.Helper()
	e := engine.New(memory.New(), nil)
	srv := server.New(e, logging.NewCLI(), server.Options{})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c := client.New(client.Options{BaseURL: ts.URL})
	ctx := context.Background()

	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "train.sh", 1, 0)
	require.NoError(t, err)
	return c, proj, task
}

func TestLoop_OneShotRunsAndCompletesJob(t *testing.T) {
	c, proj, task := newTestBroker(t)
	ctx := context.Background()

	job, err := c.CreateJob(ctx, proj.ID, task.ID, "exp-1", nil, 0, nil)
	require.NoError(t, err)

	f := &stubFormatter{}
	loop := worker.New(c, f, nil, worker.Options{
		ProjectID:    proj.ID,
		WorkerID:     "w-1",
		Capacity:     types.Capacity{CPU: 1},
		PollInterval: 10 * time.Millisecond,
		OneShot:      true,
	})

	require.NoError(t, loop.Run(ctx))
	require.Equal(t, []string{"train"}, f.ran)

	final, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, final.Status)
}

func TestLoop_OneShotReportsFailedOnExecutionError(t *testing.T) {
	c, proj, task := newTestBroker(t)
	ctx := context.Background()

	job, err := c.CreateJob(ctx, proj.ID, task.ID, "exp-1", nil, 0, nil)
	require.NoError(t, err)

	f := &stubFormatter{err: werrors.Execution(nil, "boom")}
	loop := worker.New(c, f, nil, worker.Options{
		ProjectID:    proj.ID,
		WorkerID:     "w-1",
		Capacity:     types.Capacity{CPU: 1},
		PollInterval: 10 * time.Millisecond,
		OneShot:      true,
	})

	require.NoError(t, loop.Run(ctx))

	final, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, final.Status)
}

func TestLoop_OneShotExitsImmediatelyOnEmptyQueue(t *testing.T) {
	c, proj, _ := newTestBroker(t)

	f := &stubFormatter{}
	loop := worker.New(c, f, nil, worker.Options{
		ProjectID:    proj.ID,
		WorkerID:     "w-1",
		Capacity:     types.Capacity{CPU: 1},
		PollInterval: time.Minute,
		OneShot:      true,
	})

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot loop did not exit on empty queue")
	}
	require.Empty(t, f.ran)
}

func TestLoop_ContextCancellationStopsTheLoop(t *testing.T) {
	c, proj, _ := newTestBroker(t)

	f := &stubFormatter{}
	loop := worker.New(c, f, nil, worker.Options{
		ProjectID:    proj.ID,
		WorkerID:     "w-1",
		Capacity:     types.Capacity{CPU: 1},
		PollInterval: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Give the loop a moment to register and reach its first poll sleep.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}
