package engine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/store/memory"
	"github.com/whatsnext/whatsnext/internal/types"
)

func newTestEngine(t *testing.T) (*engine.Engine, *types.Project, *types.Task) {
	t.Helper()
	s := memory.New()
	e := engine.New(s, nil)

	ctx := context.Background()
	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "", 1, 0)
	require.NoError(t, err)
	return e, proj, task
}

// E1 - single-job round-trip.
func TestFetchNext_SingleJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	job, err := e.CreateJob(ctx, proj.ID, task.ID, "exp-1", map[string]string{"lr": "0.01"}, 0, nil)
	require.NoError(t, err)

	workerCap := types.Capacity{CPU: 1}
	res, err := e.FetchNext(ctx, proj.ID, &workerCap)
	require.NoError(t, err)
	require.True(t, res.Dispatched())
	require.Equal(t, job.ID, res.Job.ID)
	require.Equal(t, 1, res.NumPending)

	_, err = e.Transition(ctx, job.ID, types.StatusRunning)
	require.NoError(t, err)
	_, err = e.Transition(ctx, job.ID, types.StatusCompleted)
	require.NoError(t, err)

	final, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, final.Status)
}

// E2 - priority order.
func TestFetchNext_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	priorities := []int{0, 5, 5, 10}
	ids := make([]int64, len(priorities))
	for i, p := range priorities {
		job, err := e.CreateJob(ctx, proj.ID, task.ID, "job", nil, p, nil)
		require.NoError(t, err)
		ids[i] = job.ID
	}

	// ids are assigned in insertion order 100,101,102,103 in spirit; here
	// we just assert the returned order matches priority desc, id asc
	// among the actually-assigned ids.
	want := []int64{ids[3], ids[1], ids[2], ids[0]}

	for _, wantID := range want {
		res, err := e.FetchNext(ctx, proj.ID, nil)
		require.NoError(t, err)
		require.True(t, res.Dispatched())
		require.Equal(t, wantID, res.Job.ID)
	}
}

// E3 - concurrent dispatch: exactly one winner.
func TestFetchNext_ConcurrentDispatchExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	job, err := e.CreateJob(ctx, proj.ID, task.ID, "exp", nil, 0, nil)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var wins atomic.Int32
	results := make([]types.FetchResult, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := e.FetchNext(ctx, proj.ID, nil)
			require.NoError(t, err)
			results[i] = res
			if res.Dispatched() {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	for _, res := range results {
		if res.Dispatched() {
			require.Equal(t, job.ID, res.Job.ID)
		}
	}
}

// E4 - dependency gating.
func TestFetchNext_DependencyGating(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	jobA, err := e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	jobB, err := e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, map[int64]string{jobA.ID: jobA.Name})
	require.NoError(t, err)

	res, err := e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Dispatched())
	require.Equal(t, jobA.ID, res.Job.ID)

	res, err = e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.False(t, res.Dispatched())

	_, err = e.Transition(ctx, jobA.ID, types.StatusRunning)
	require.NoError(t, err)
	_, err = e.Transition(ctx, jobA.ID, types.StatusCompleted)
	require.NoError(t, err)

	res, err = e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Dispatched())
	require.Equal(t, jobB.ID, res.Job.ID)
}

// E5 - failure cascade.
func TestTransition_FailureCascade(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	jobA, err := e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	jobB, err := e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, map[int64]string{jobA.ID: jobA.Name})
	require.NoError(t, err)
	jobC, err := e.CreateJob(ctx, proj.ID, task.ID, "c", nil, 0, map[int64]string{jobB.ID: jobB.Name})
	require.NoError(t, err)

	_, err = e.Transition(ctx, jobA.ID, types.StatusRunning)
	require.Error(t, err) // illegal: PENDING cannot go directly to RUNNING

	res, err := e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.Equal(t, jobA.ID, res.Job.ID)

	_, err = e.Transition(ctx, jobA.ID, types.StatusRunning)
	require.NoError(t, err)

	result, err := e.Transition(ctx, jobA.ID, types.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, 2, result.JobsBlocked)

	b, err := e.GetJob(ctx, jobB.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, b.Status)

	c, err := e.GetJob(ctx, jobC.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, c.Status)

	idle, err := e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.False(t, idle.Dispatched())
	require.Equal(t, 0, idle.NumPending)
}

// E6 - cycle rejection.
func TestUpdateJobDependencies_CycleRejection(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	jobA, err := e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	jobB, err := e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, map[int64]string{jobA.ID: jobA.Name})
	require.NoError(t, err)

	_, err = e.UpdateJobDependencies(ctx, jobA.ID, map[int64]string{jobB.ID: jobB.Name})
	require.Error(t, err)

	freshA, err := e.GetJob(ctx, jobA.ID)
	require.NoError(t, err)
	require.Empty(t, freshA.Dependencies)

	freshB, err := e.GetJob(ctx, jobB.ID)
	require.NoError(t, err)
	require.Contains(t, freshB.Dependencies, jobA.ID)
}

// Property 6 - resource filtering monotonicity.
func TestReadySet_ResourceFilteringMonotonicity(t *testing.T) {
	ctx := context.Background()
	e, proj, _ := newTestEngine(t)

	bigTask, err := e.CreateTask(ctx, proj.ID, "big", "", 4, 1)
	require.NoError(t, err)
	_, err = e.CreateJob(ctx, proj.ID, bigTask.ID, "heavy", nil, 0, nil)
	require.NoError(t, err)

	small := types.Capacity{CPU: 1}
	big := types.Capacity{CPU: 4, Accelerators: 1}

	resSmall, err := e.FetchNext(ctx, proj.ID, &small)
	require.NoError(t, err)
	require.False(t, resSmall.Dispatched())

	resBig, err := e.FetchNext(ctx, proj.ID, &big)
	require.NoError(t, err)
	require.True(t, resBig.Dispatched())
}

// Property 7 - archived project rejects writes.
func TestArchivedProject_RejectsJobCreation(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	archived := types.ProjectArchived
	_, err := e.UpdateProject(ctx, proj.ID, store.ProjectPatch{Status: &archived})
	require.NoError(t, err)

	_, err = e.CreateJob(ctx, proj.ID, task.ID, "should-fail", nil, 0, nil)
	require.Error(t, err)
}

// Completing a job reports which dependents just became ready.
func TestTransition_CompletedReportsNewlyReadyDependents(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	jobA, err := e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	jobB, err := e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, map[int64]string{jobA.ID: jobA.Name})
	require.NoError(t, err)
	// jobC depends on both a and b, so it isn't ready the moment a completes.
	_, err = e.CreateJob(ctx, proj.ID, task.ID, "c", nil, 0, map[int64]string{
		jobA.ID: jobA.Name, jobB.ID: jobB.Name,
	})
	require.NoError(t, err)

	res, err := e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.Equal(t, jobA.ID, res.Job.ID)
	_, err = e.Transition(ctx, jobA.ID, types.StatusRunning)
	require.NoError(t, err)

	result, err := e.Transition(ctx, jobA.ID, types.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, result.NewlyReady, 1)
	require.Equal(t, jobB.ID, result.NewlyReady[0].ID)
}

// Retry policy: BLOCKED job with a FAILED dependency refuses retry.
func TestRetry_BlockedWithFailedDependencyRefused(t *testing.T) {
	ctx := context.Background()
	e, proj, task := newTestEngine(t)

	jobA, err := e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	jobB, err := e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, map[int64]string{jobA.ID: jobA.Name})
	require.NoError(t, err)

	res, err := e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)
	require.Equal(t, jobA.ID, res.Job.ID)
	_, err = e.Transition(ctx, jobA.ID, types.StatusRunning)
	require.NoError(t, err)
	_, err = e.Transition(ctx, jobA.ID, types.StatusFailed)
	require.NoError(t, err)

	_, err = e.Retry(ctx, jobB.ID)
	require.Error(t, err)
}
