package engine

import (
	"context"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
)

func (e *Engine) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	var p *types.Project
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		created, err := tx.CreateProject(ctx, name, description)
		if err != nil {
			return err
		}
		p = created
		return nil
	})
	return p, err
}

func (e *Engine) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p *types.Project
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		p = got
		return nil
	})
	return p, err
}

func (e *Engine) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	var p *types.Project
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetProjectByName(ctx, name)
		if err != nil {
			return err
		}
		p = got
		return nil
	})
	return p, err
}

func (e *Engine) ListProjects(ctx context.Context) ([]*types.Project, error) {
	var out []*types.Project
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

func (e *Engine) UpdateProject(ctx context.Context, id int64, patch store.ProjectPatch) (*types.Project, error) {
	var p *types.Project
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.UpdateProject(ctx, id, patch)
		if err != nil {
			return err
		}
		p = updated
		return nil
	})
	return p, err
}

func (e *Engine) DeleteProject(ctx context.Context, id int64) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProject(ctx, id)
	})
}

func (e *Engine) DeleteProjectByName(ctx context.Context, name string) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProjectByName(ctx, name)
		if err != nil {
			return err
		}
		return tx.DeleteProject(ctx, p.ID)
	})
}

// DeleteQueue removes all PENDING jobs from a project's queue, returning
// the number deleted, for DELETE /projects/{id}/queue.
func (e *Engine) DeleteQueue(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		deleted, err := tx.DeletePendingJobs(ctx, projectID)
		if err != nil {
			return err
		}
		n = deleted
		return nil
	})
	return n, err
}
