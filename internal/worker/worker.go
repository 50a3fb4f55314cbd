// Package worker implements the C6 dispatch loop of spec.md §4.6: a
// worker process that registers with the broker, repeatedly fetches and
// runs jobs through a command formatter, reports their terminal status,
// and drains gracefully on SIGINT/SIGTERM. Signal handling is grounded on
// the teacher's web UI server shutdown path (examples/beads-web-ui/main.go).
package worker

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/whatsnext/whatsnext/internal/client"
	"github.com/whatsnext/whatsnext/internal/formatter"
	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// Options configures a Loop.
type Options struct {
	ProjectID    int64
	WorkerID     string
	Name         string
	Entity       string
	Description  string
	Capacity     types.Capacity
	PollInterval time.Duration
	OneShot      bool // exit instead of polling once the queue is empty
}

// Loop drives one worker's fetch/run/report cycle against a broker Client
// using a Formatter to translate and execute jobs.
type Loop struct {
	client    *client.Client
	formatter formatter.Formatter
	log       *logging.Logger
	opts      Options

	shutdown atomic.Bool
	quit     chan struct{} // closed exactly once, by installSignalHandler
}

// New builds a Loop. PollInterval defaults to 5s per spec.md §4.6.
func New(c *client.Client, f formatter.Formatter, log *logging.Logger, opts Options) *Loop {
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Second
	}
	if log == nil {
		log = logging.NewCLI()
	}
	return &Loop{client: c, formatter: f, log: log, opts: opts, quit: make(chan struct{})}
}

// Run registers the worker, drives the loop until shutdown is requested
// (via ctx cancellation or an installed signal handler), and deactivates
// on exit. It returns the first unrecoverable error encountered, or nil
// on a clean shutdown / one-shot completion.
func (l *Loop) Run(ctx context.Context) error {
	worker, err := l.client.RegisterWorker(ctx, l.opts.WorkerID, l.opts.Name, l.opts.Entity, l.opts.Description, l.opts.Capacity)
	if err != nil {
		return werrors.Wrap(werrors.KindFatal, err, "registering worker")
	}
	l.opts.WorkerID = worker.ID
	l.log.Info("worker registered", "worker_id", worker.ID, "project_id", l.opts.ProjectID)

	stop := l.installSignalHandler()
	defer stop()

	defer func() {
		if _, err := l.client.DeactivateWorker(context.Background(), l.opts.WorkerID); err != nil {
			l.log.Warn("deactivate failed", "worker_id", l.opts.WorkerID, "error", err)
		}
	}()

	for !l.shutdown.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		res, err := l.client.FetchJob(ctx, l.opts.ProjectID, l.opts.Capacity)
		if err != nil {
			l.log.Warn("fetch_next failed", "error", err)
			if !sleepOrDone(ctx, l.opts.PollInterval, l.quit) {
				return nil
			}
			continue
		}

		if !res.Dispatched() {
			if l.opts.OneShot && res.NumPending == 0 {
				return nil
			}
			if !sleepOrDone(ctx, l.opts.PollInterval, l.quit) {
				return nil
			}
			continue
		}

		l.runJob(ctx, res.Job)
	}

	return nil
}

// runJob executes one dispatched job end to end: transition to RUNNING,
// format + execute, report the terminal status. Any formatting or
// execution error reports FAILED and the loop continues (4.6 step 3c).
func (l *Loop) runJob(ctx context.Context, job *types.Job) {
	logger := l.log.With("job_id", job.ID, "job_name", job.Name)

	if err := l.client.TransitionJob(ctx, job.ID, types.StatusRunning); err != nil {
		logger.Warn("transition to RUNNING failed", "error", err)
		return
	}

	task, err := l.taskForJob(ctx, job)
	final := types.StatusCompleted
	if err != nil {
		logger.Warn("loading task failed", "error", err)
		final = types.StatusFailed
	} else if err := l.execute(ctx, task, job, logger); err != nil {
		logger.Warn("job execution failed", "error", err)
		final = types.StatusFailed
	}

	if err := l.client.TransitionJob(ctx, job.ID, final); err != nil {
		logger.Warn("reporting terminal status failed", "error", err, "status", final)
	}
}

func (l *Loop) execute(ctx context.Context, task *types.Task, job *types.Job, logger *logging.Logger) error {
	argv, err := l.formatter.Format(task, job.Parameters)
	if err != nil {
		return err
	}
	result, err := l.formatter.Execute(ctx, argv)
	if err != nil {
		return err
	}
	logger.Debug("job executed", "exit_code", result.ExitCode, "stdout_len", len(result.Stdout))
	if !result.Succeeded() {
		return werrors.Execution(nil, "exit code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

// taskForJob resolves the Task named by job — the broker doesn't embed
// the full Task in FetchResult, so the worker fetches it once per job.
func (l *Loop) taskForJob(ctx context.Context, job *types.Job) (*types.Task, error) {
	tasks, err := l.client.ListTasks(ctx, job.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == job.TaskID {
			return t, nil
		}
	}
	return nil, werrors.NotFound("task %d not found in project %d", job.TaskID, job.ProjectID)
}

// installSignalHandler sets shutdown_requested on SIGINT/SIGTERM, allowing
// an in-flight job to finish (the flag is only checked between jobs, per
// spec.md §4.6 step 2). Returns a function that stops intercepting signals.
func (l *Loop) installSignalHandler() func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	stopped := make(chan struct{})
	go func() {
		select {
		case <-sig:
			l.shutdown.Store(true)
			close(l.quit)
		case <-stopped:
		}
	}()
	return func() {
		close(stopped)
		signal.Stop(sig)
	}
}

// sleepOrDone sleeps for d, returning false early if stop fires first.
func sleepOrDone(ctx context.Context, d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}
