package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

const taskColumns = `id, project_id, name, command_template, required_cpu, required_accelerators, created_at, updated_at`

func scanTask(row interface{ Scan(dest ...any) error }) (*types.Task, error) {
	var t types.Task
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.CommandTemplate, &t.RequiredCPU, &t.RequiredAccelerators, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *txImpl) requireActiveProject(ctx context.Context, projectID int64) error {
	p, err := t.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Status == types.ProjectArchived {
		return werrors.Validation("project %d is archived", projectID)
	}
	return nil
}

func (t *txImpl) CreateTask(ctx context.Context, projectID int64, name, commandTemplate string, requiredCPU, requiredAccelerators int) (*types.Task, error) {
	if err := t.requireActiveProject(ctx, projectID); err != nil {
		return nil, err
	}
	now := formatTime(timeNow())
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO tasks (project_id, name, command_template, required_cpu, required_accelerators, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		projectID, name, commandTemplate, requiredCPU, requiredAccelerators, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, werrors.Conflict("task %q already exists in project %d", name, projectID)
		}
		return nil, fmt.Errorf("sqlite: creating task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new task id: %w", err)
	}
	return t.GetTask(ctx, id)
}

func (t *txImpl) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("task %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting task %d: %w", id, err)
	}
	return task, nil
}

func (t *txImpl) GetTaskByName(ctx context.Context, projectID int64, name string) (*types.Task, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? AND name = ?`, projectID, name)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("task %q not found in project %d", name, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting task by name %q: %w", name, err)
	}
	return task, nil
}

func (t *txImpl) ListTasks(ctx context.Context, projectID int64) ([]*types.Task, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (t *txImpl) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (*types.Task, error) {
	existing, err := t.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.requireActiveProject(ctx, existing.ProjectID); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.CommandTemplate != nil {
		sets = append(sets, "command_template = ?")
		args = append(args, *patch.CommandTemplate)
	}
	if patch.RequiredCPU != nil {
		sets = append(sets, "required_cpu = ?")
		args = append(args, *patch.RequiredCPU)
	}
	if patch.RequiredAccelerators != nil {
		sets = append(sets, "required_accelerators = ?")
		args = append(args, *patch.RequiredAccelerators)
	}
	if len(sets) == 0 {
		return existing, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(timeNow()))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, werrors.Conflict("task name already in use in this project")
		}
		return nil, fmt.Errorf("sqlite: updating task %d: %w", id, err)
	}
	return t.GetTask(ctx, id)
}

func (t *txImpl) DeleteTask(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return werrors.NotFound("task %d not found", id)
	}
	return nil
}
