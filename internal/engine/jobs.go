package engine

import (
	"context"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

func (e *Engine) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	var j *types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetJob(ctx, id)
		if err != nil {
			return err
		}
		j = got
		return nil
	})
	return j, err
}

func (e *Engine) ListJobs(ctx context.Context, projectID int64) ([]*types.Job, error) {
	var out []*types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListJobs(ctx, projectID)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

// UpdateJob patches mutable job fields other than dependencies and
// status; dependency changes go through UpdateJobDependencies (cycle
// validation) and status changes through Transition/Retry.
func (e *Engine) UpdateJob(ctx context.Context, id int64, patch store.JobPatch) (*types.Job, error) {
	patch.Dependencies = nil
	var j *types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.UpdateJob(ctx, id, patch)
		if err != nil {
			return err
		}
		j = updated
		return nil
	})
	return j, err
}

func (e *Engine) DeleteJob(ctx context.Context, id int64) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.DeleteJob(ctx, id)
	})
}

// BatchCreateJobs implements POST /projects/{id}/jobs/batch: an atomic
// batch insert that either creates every job or none. Each job's direct
// dependencies are checked to exist (a missing one fails with the store's
// NotFound error) and to belong to the same project.
type BatchJobSpec struct {
	TaskID       int64
	Name         string
	Parameters   map[string]string
	Priority     int
	Dependencies map[int64]string
}

func (e *Engine) BatchCreateJobs(ctx context.Context, projectID int64, specs []BatchJobSpec) ([]*types.Job, error) {
	var created []*types.Job
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		for _, spec := range specs {
			for depID := range spec.Dependencies {
				dep, err := tx.GetJob(ctx, depID)
				if err != nil {
					return err
				}
				if dep.ProjectID != projectID {
					return werrors.Validation("dependency %d belongs to a different project", depID)
				}
			}
			job, err := tx.CreateJob(ctx, projectID, spec.TaskID, spec.Name, spec.Parameters, spec.Priority, spec.Dependencies)
			if err != nil {
				return err
			}
			created = append(created, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
