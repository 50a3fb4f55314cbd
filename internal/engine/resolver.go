package engine

import (
	"context"
	"fmt"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// readiness holds the outcome of 4.2.2 for one job.
type readiness struct {
	Ready     bool
	HasFailed bool
}

// checkReadiness evaluates 4.2.2 for a single job given a precomputed
// status-by-id map for the project (built once per ReadySet/dependency
// report call instead of re-querying per dependency).
func checkReadiness(depIDs []int64, statusByID map[int64]types.JobStatus) readiness {
	if len(depIDs) == 0 {
		return readiness{Ready: true}
	}
	r := readiness{Ready: true}
	for _, id := range depIDs {
		st, ok := statusByID[id]
		if !ok {
			// Missing dependency: readiness fails but this is not by
			// itself a "has-failed" case.
			r.Ready = false
			continue
		}
		if st == types.StatusFailed {
			r.Ready = false
			r.HasFailed = true
			continue
		}
		if st != types.StatusCompleted {
			r.Ready = false
		}
	}
	return r
}

// detectCycle implements 4.2.3: before persisting dependency set deps on
// job selfID within project projectID, DFS from every id in deps,
// following each visited job's own dependency set, and fail if the
// traversal reaches selfID (including the immediate self-dependency
// case). Only jobs within projectID participate.
func detectCycle(ctx context.Context, tx store.Tx, projectID, selfID int64, deps map[int64]string) error {
	if _, self := deps[selfID]; self {
		return werrors.Validation("job %d cannot depend on itself", selfID)
	}

	visited := map[int64]bool{}
	var visit func(id int64) error
	visit = func(id int64) error {
		if id == selfID {
			return werrors.Validation("dependency set introduces a cycle through job %d", id)
		}
		if visited[id] {
			return nil
		}
		visited[id] = true

		job, err := tx.GetJob(ctx, id)
		if err != nil {
			return werrors.Validation("dependency %d does not exist", id)
		}
		if job.ProjectID != projectID {
			return werrors.Validation("dependency %d belongs to a different project", id)
		}
		for depID := range job.Dependencies {
			if err := visit(depID); err != nil {
				return err
			}
		}
		return nil
	}

	for id := range deps {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// propagateFailure implements 4.2.4: when job jobID transitions to
// FAILED, every dependent in a non-terminal status moves to BLOCKED, and
// the newly-blocked dependents are propagated in turn. Traversal is
// breadth-first and terminates because the dependency graph is acyclic
// (detectCycle enforces this on every write). Returns the count of jobs
// blocked.
func propagateFailure(ctx context.Context, tx store.Tx, projectID, jobID int64) (int, error) {
	queue := []int64{jobID}
	blocked := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		dependents, err := tx.ListDependentsOf(ctx, projectID, current)
		if err != nil {
			return blocked, fmt.Errorf("engine: listing dependents of job %d: %w", current, err)
		}
		for _, dep := range dependents {
			if dep.Status.IsTerminal() {
				continue
			}
			if dep.Status == types.StatusBlocked {
				continue
			}
			if _, err := tx.TransitionJob(ctx, dep.ID, types.StatusBlocked); err != nil {
				return blocked, fmt.Errorf("engine: blocking job %d: %w", dep.ID, err)
			}
			blocked++
			queue = append(queue, dep.ID)
		}
	}

	return blocked, nil
}

// readySet implements 4.2.5: PENDING jobs in the project whose
// readiness check passes, optionally filtered by capacity, in
// priority-descending, id-ascending order (the order ListJobsByStatus
// already returns).
func readySet(ctx context.Context, tx store.Tx, projectID int64, capacity *types.Capacity) ([]*types.Job, error) {
	pending, err := tx.ListJobsByStatus(ctx, projectID, types.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("engine: listing pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	all, err := tx.ListJobs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("engine: listing project jobs: %w", err)
	}
	statusByID := make(map[int64]types.JobStatus, len(all))
	for _, j := range all {
		statusByID[j.ID] = j.Status
	}

	// Batch-load dependency edges for the whole candidate page in one
	// round trip, adapted from the teacher's GetDependenciesForIssues
	// (SUPPLEMENTED FEATURES #2 in SPEC_FULL.md), instead of trusting the
	// per-row Dependencies already populated by ListJobsByStatus.
	ids := make([]int64, len(pending))
	for i, j := range pending {
		ids[i] = j.ID
	}
	depsByJob, err := tx.ListDependenciesForJobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: batch loading dependencies: %w", err)
	}

	tasks, err := tx.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("engine: listing tasks: %w", err)
	}
	taskByID := make(map[int64]*types.Task, len(tasks))
	for _, task := range tasks {
		taskByID[task.ID] = task
	}

	var out []*types.Job
	for _, job := range pending {
		deps := depsByJob[job.ID]
		depIDs := make([]int64, len(deps))
		for i, d := range deps {
			depIDs[i] = d.JobID
		}

		r := checkReadiness(depIDs, statusByID)
		if !r.Ready {
			continue
		}

		if capacity != nil {
			task, ok := taskByID[job.TaskID]
			if !ok {
				continue
			}
			if !capacity.Fits(task.RequiredCPU, task.RequiredAccelerators) {
				continue
			}
		}

		out = append(out, job)
	}
	return out, nil
}

// newlyReadyByCompletion implements SUPPLEMENTED FEATURES #4, adapted from
// the teacher's GetNewlyUnblockedByClose: when jobID just moved to
// COMPLETED, return every PENDING dependent whose other dependencies are
// now all satisfied too, so callers (the HTTP response, the CLI) can
// surface "this unblocked N jobs" without a second round trip.
func newlyReadyByCompletion(ctx context.Context, tx store.Tx, projectID, jobID int64) ([]*types.Job, error) {
	dependents, err := tx.ListDependentsOf(ctx, projectID, jobID)
	if err != nil {
		return nil, fmt.Errorf("engine: listing dependents of job %d: %w", jobID, err)
	}

	var pending []*types.Job
	for _, dep := range dependents {
		if dep.Status == types.StatusPending {
			pending = append(pending, dep)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	all, err := tx.ListJobs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("engine: listing project jobs: %w", err)
	}
	statusByID := make(map[int64]types.JobStatus, len(all))
	for _, j := range all {
		statusByID[j.ID] = j.Status
	}

	ids := make([]int64, len(pending))
	for i, j := range pending {
		ids[i] = j.ID
	}
	depsByJob, err := tx.ListDependenciesForJobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: batch loading dependencies: %w", err)
	}

	var ready []*types.Job
	for _, job := range pending {
		deps := depsByJob[job.ID]
		depIDs := make([]int64, len(deps))
		for i, d := range deps {
			depIDs[i] = d.JobID
		}
		if checkReadiness(depIDs, statusByID).Ready {
			ready = append(ready, job)
		}
	}
	return ready, nil
}

// DependencyReport builds the /jobs/{id}/dependencies response shape.
func (e *Engine) DependencyReport(ctx context.Context, jobID int64) (*types.DependencyReport, error) {
	var report *types.DependencyReport
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		all, err := tx.ListJobs(ctx, job.ProjectID)
		if err != nil {
			return fmt.Errorf("engine: listing project jobs: %w", err)
		}
		statusByID := make(map[int64]types.JobStatus, len(all))
		for _, j := range all {
			statusByID[j.ID] = j.Status
		}

		depsByJob, err := tx.ListDependenciesForJobs(ctx, []int64{jobID})
		if err != nil {
			return err
		}
		deps := depsByJob[jobID]
		depIDs := make([]int64, len(deps))
		for i, d := range deps {
			depIDs[i] = d.JobID
		}
		r := checkReadiness(depIDs, statusByID)

		report = &types.DependencyReport{
			JobID:        job.ID,
			JobName:      job.Name,
			Status:       job.Status,
			Dependencies: deps,
			AllCompleted: r.Ready,
			HasFailed:    r.HasFailed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
