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

const projectColumns = `id, name, description, status, created_at, updated_at`

func scanProject(row interface{ Scan(dest ...any) error }) (*types.Project, error) {
	var p types.Project
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *txImpl) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	now := formatTime(timeNow())
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO projects (name, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, description, types.ProjectActive, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, werrors.Conflict("project %q already exists", name)
		}
		return nil, fmt.Errorf("sqlite: creating project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new project id: %w", err)
	}
	return t.GetProject(ctx, id)
}

func (t *txImpl) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("project %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting project %d: %w", id, err)
	}
	return p, nil
}

func (t *txImpl) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("project %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting project by name %q: %w", name, err)
	}
	return p, nil
}

func (t *txImpl) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txImpl) UpdateProject(ctx context.Context, id int64, patch store.ProjectPatch) (*types.Project, error) {
	if _, err := t.GetProject(ctx, id); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if len(sets) == 0 {
		return t.GetProject(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(timeNow()))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, werrors.Conflict("project name already in use")
		}
		return nil, fmt.Errorf("sqlite: updating project %d: %w", id, err)
	}
	return t.GetProject(ctx, id)
}

func (t *txImpl) DeleteProject(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return werrors.NotFound("project %d not found", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}

func timeNow() time.Time { return time.Now() }
