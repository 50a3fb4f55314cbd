package engine

import (
	"context"
	"time"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
)

// RegisterWorker implements C5 register: upsert semantics, refreshing
// last_heartbeat and reactivating on every call per spec.md §4.5.
func (e *Engine) RegisterWorker(ctx context.Context, id, name, entity, description string, capacity types.Capacity) (*types.Worker, error) {
	var w *types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		registered, err := tx.RegisterWorker(ctx, id, name, entity, description, capacity, time.Now())
		if err != nil {
			return err
		}
		w = registered
		return nil
	})
	return w, err
}

// Heartbeat implements C5 heartbeat(id).
func (e *Engine) Heartbeat(ctx context.Context, id string) (*types.Worker, error) {
	var w *types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.HeartbeatWorker(ctx, id, time.Now())
		if err != nil {
			return err
		}
		w = updated
		return nil
	})
	return w, err
}

// DeactivateWorker implements C5 deactivate(id).
func (e *Engine) DeactivateWorker(ctx context.Context, id string) (*types.Worker, error) {
	var w *types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.DeactivateWorker(ctx, id)
		if err != nil {
			return err
		}
		w = updated
		return nil
	})
	return w, err
}

// UpdateWorkerCapacity implements C5 update_capacity(id, cpu?, accelerators?).
// A fully-nil patch is a no-op that still returns the current worker,
// issuing no write, per spec.md §4.5.
func (e *Engine) UpdateWorkerCapacity(ctx context.Context, id string, patch store.WorkerPatch) (*types.Worker, error) {
	var w *types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		updated, err := tx.UpdateWorkerCapacity(ctx, id, patch)
		if err != nil {
			return err
		}
		w = updated
		return nil
	})
	return w, err
}

// DeleteWorker implements C5 delete(id): a hard delete.
func (e *Engine) DeleteWorker(ctx context.Context, id string) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.DeleteWorker(ctx, id)
	})
}

// GetWorker and ListWorkers are thin read-through wrappers used by the
// HTTP handlers and CLI.
func (e *Engine) GetWorker(ctx context.Context, id string) (*types.Worker, error) {
	var w *types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetWorker(ctx, id)
		if err != nil {
			return err
		}
		w = got
		return nil
	})
	return w, err
}

func (e *Engine) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	var out []*types.Worker
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListWorkers(ctx)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	return out, err
}
