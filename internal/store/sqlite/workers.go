package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

const workerColumns = `id, name, entity, description, cpu, accelerators, is_active, last_heartbeat, created_at`

func scanWorker(row interface{ Scan(dest ...any) error }) (*types.Worker, error) {
	var w types.Worker
	var lastHeartbeat, createdAt string
	if err := row.Scan(&w.ID, &w.Name, &w.Entity, &w.Description, &w.Capacity.CPU, &w.Capacity.Accelerators, &w.IsActive, &lastHeartbeat, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if w.LastHeartbeat, err = parseTime(lastHeartbeat); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// RegisterWorker upserts: on first registration it inserts a new row with
// is_active=true; on re-registration it refreshes name/entity/description
// /capacity and last_heartbeat, per spec.md §4.5.
func (t *txImpl) RegisterWorker(ctx context.Context, id, name, entity, description string, capacity types.Capacity, now time.Time) (*types.Worker, error) {
	capacity = capacity.Normalize()
	nowStr := formatTime(now)

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO workers (id, name, entity, description, cpu, accelerators, is_active, last_heartbeat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity = excluded.entity,
			description = excluded.description,
			cpu = excluded.cpu,
			accelerators = excluded.accelerators,
			is_active = 1,
			last_heartbeat = excluded.last_heartbeat`,
		id, name, entity, description, capacity.CPU, capacity.Accelerators, nowStr, nowStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: registering worker %q: %w", id, err)
	}
	return t.GetWorker(ctx, id)
}

func (t *txImpl) GetWorker(ctx context.Context, id string) (*types.Worker, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("worker %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting worker %q: %w", id, err)
	}
	return w, nil
}

func (t *txImpl) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing workers: %w", err)
	}
	defer rows.Close()

	var out []*types.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (t *txImpl) HeartbeatWorker(ctx context.Context, id string, now time.Time) (*types.Worker, error) {
	if _, err := t.GetWorker(ctx, id); err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE workers SET last_heartbeat = ? WHERE id = ?`, formatTime(now), id); err != nil {
		return nil, fmt.Errorf("sqlite: heartbeating worker %q: %w", id, err)
	}
	return t.GetWorker(ctx, id)
}

func (t *txImpl) DeactivateWorker(ctx context.Context, id string) (*types.Worker, error) {
	if _, err := t.GetWorker(ctx, id); err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE workers SET is_active = 0 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("sqlite: deactivating worker %q: %w", id, err)
	}
	return t.GetWorker(ctx, id)
}

func (t *txImpl) UpdateWorkerCapacity(ctx context.Context, id string, patch store.WorkerPatch) (*types.Worker, error) {
	existing, err := t.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if patch.CPU != nil {
		sets = append(sets, "cpu = ?")
		args = append(args, max(*patch.CPU, 0))
	}
	if patch.Accelerators != nil {
		sets = append(sets, "accelerators = ?")
		args = append(args, max(*patch.Accelerators, 0))
	}
	if len(sets) == 0 {
		return existing, nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workers SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: updating worker %q capacity: %w", id, err)
	}
	return t.GetWorker(ctx, id)
}

func (t *txImpl) DeleteWorker(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting worker %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return werrors.NotFound("worker %q not found", id)
	}
	return nil
}
