package engine

import (
	"context"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
)

func (e *Engine) CreateTask(ctx context.Context, projectID int64, name, commandTemplate string, requiredCPU, requiredAccelerators int) (*types.Task, error) {
	var t *types.Task
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		created, err := tx.CreateTask(ctx, projectID, name, commandTemplate, requiredCPU, requiredAccelerators)
		if err != nil {
			return err
		}
		t = created
		return nil
	})
	return t, err
}

func (e *Engine) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	var t *types.Task
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		t = got
		return nil
	})
	return t, err
}

func (e *Engine) GetTaskByName(ctx context.Context, projectID int64, name string) (*types.Task, error) {
	var t *types.Task
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetTaskByName(ctx, projectID, name)
		if err != nil {
			return err
		}
		t = got
		return nil
	})
	return t, err
}

func (e *Engine) ListTasks(ctx context.Context, projectID int64) ([]*types.Task, error) {
	var out []*types.Task
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListTasks(ctx, projectID)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}

func (e *Engine) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (*types.Task, error) {
	var t *types.Task
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.UpdateTask(ctx, id, patch)
		if err != nil {
			return err
		}
		t = updated
		return nil
	})
	return t, err
}

func (e *Engine) DeleteTask(ctx context.Context, id int64) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.DeleteTask(ctx, id)
	})
}
