package engine

import (
	"context"
	"fmt"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// legalTransitions encodes the table in spec.md §4.4. BLOCKED->PENDING
// and FAILED->PENDING are both retry-only (SUPPLEMENTED FEATURES #3):
// Transition rejects them unless the caller goes through Retry, which
// additionally enforces footnote ¹ (no dependency currently FAILED).
var legalTransitions = map[types.JobStatus]map[types.JobStatus]bool{
	types.StatusPending: {
		types.StatusQueued:  true,
		types.StatusBlocked: true,
	},
	types.StatusQueued: {
		types.StatusRunning: true,
		types.StatusFailed:  true,
	},
	types.StatusRunning: {
		types.StatusCompleted: true,
		types.StatusFailed:    true,
	},
	types.StatusBlocked: {
		types.StatusFailed: true,
	},
	types.StatusFailed:    {},
	types.StatusCompleted: {},
}

// TransitionResult reports a transition's outcome, including how many
// dependents were cascaded to BLOCKED if the new status was FAILED, or
// which dependents became newly ready if the new status was COMPLETED
// (SUPPLEMENTED FEATURES #4).
type TransitionResult struct {
	Job          *types.Job   `json:"job"`
	JobsBlocked  int          `json:"jobs_blocked"`
	NewlyReady   []*types.Job `json:"newly_ready,omitempty"`
	AlreadyAtNew bool         `json:"already_at_new,omitempty"`
}

// Transition implements C4: validate legality per the table above, apply
// the status change, and — if the new status is FAILED — cascade
// failure to dependents (4.2.4) within the same transaction. Same-status
// transitions are idempotent no-ops per spec.md §7.
func (e *Engine) Transition(ctx context.Context, jobID int64, newStatus types.JobStatus) (TransitionResult, error) {
	var result TransitionResult

	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		if job.Status == newStatus {
			result = TransitionResult{Job: job, AlreadyAtNew: true}
			return nil
		}

		if !legalTransitions[job.Status][newStatus] {
			return werrors.Validation("illegal transition for job %d: %s -> %s", jobID, job.Status, newStatus)
		}

		updated, err := tx.TransitionJob(ctx, jobID, newStatus)
		if err != nil {
			return err
		}
		result.Job = updated

		if newStatus == types.StatusFailed {
			blocked, err := propagateFailure(ctx, tx, job.ProjectID, jobID)
			if err != nil {
				return err
			}
			result.JobsBlocked = blocked
		}

		if newStatus == types.StatusCompleted {
			ready, err := newlyReadyByCompletion(ctx, tx, job.ProjectID, jobID)
			if err != nil {
				return err
			}
			result.NewlyReady = ready
		}

		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

// Retry implements the explicit-retry-only policy from spec.md §9's open
// question: BLOCKED->PENDING and FAILED->PENDING are never implicit, only
// available through this operation. A BLOCKED job may not retry while
// any of its dependencies is still FAILED (table footnote ¹).
func (e *Engine) Retry(ctx context.Context, jobID int64) (*types.Job, error) {
	var result *types.Job

	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		switch job.Status {
		case types.StatusBlocked:
			all, err := tx.ListJobs(ctx, job.ProjectID)
			if err != nil {
				return fmt.Errorf("engine: listing project jobs: %w", err)
			}
			statusByID := make(map[int64]types.JobStatus, len(all))
			for _, j := range all {
				statusByID[j.ID] = j.Status
			}
			for depID := range job.Dependencies {
				if statusByID[depID] == types.StatusFailed {
					return werrors.Validation("job %d cannot retry: dependency %d has failed", jobID, depID)
				}
			}
		case types.StatusFailed:
			// unconditional retry per footnote ²
		default:
			return werrors.Validation("job %d is not in a retryable status (%s)", jobID, job.Status)
		}

		updated, err := tx.TransitionJob(ctx, jobID, types.StatusPending)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateJob checks that every listed dependency exists and belongs to the
// same project before delegating to the store. detectCycle is not run
// here: a job that does not exist yet has no dependents, so its new edges
// cannot close a cycle.
func (e *Engine) CreateJob(ctx context.Context, projectID, taskID int64, name string, parameters map[string]string, priority int, dependencies map[int64]string) (*types.Job, error) {
	var job *types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		// Only the direct dependencies are checked (existence and project
		// membership); self-dependency is impossible for a not-yet-created
		// job.
		for depID := range dependencies {
			dep, err := tx.GetJob(ctx, depID)
			if err != nil {
				return werrors.Validation("dependency %d does not exist", depID)
			}
			if dep.ProjectID != projectID {
				return werrors.Validation("dependency %d belongs to a different project", depID)
			}
		}
		created, err := tx.CreateJob(ctx, projectID, taskID, name, parameters, priority, dependencies)
		if err != nil {
			return err
		}
		job = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJobDependencies validates acyclicity (4.2.3) before persisting a
// new dependency set on an existing job.
func (e *Engine) UpdateJobDependencies(ctx context.Context, jobID int64, dependencies map[int64]string) (*types.Job, error) {
	var job *types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if err := detectCycle(ctx, tx, existing.ProjectID, jobID, dependencies); err != nil {
			return err
		}
		updated, err := tx.UpdateJob(ctx, jobID, store.JobPatch{Dependencies: dependencies})
		if err != nil {
			return err
		}
		job = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
