package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
)

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func timeNow() time.Time { return time.Now() }

// txImpl implements store.Tx over a *sql.Tx against Dolt, the same split
// internal/store/sqlite.txImpl uses against SQLite.
type txImpl struct {
	tx *sql.Tx
}

var _ store.Tx = (*txImpl)(nil)

func marshalParams(params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("dolt: marshaling parameters: %w", err)
	}
	return string(b), nil
}

func unmarshalParams(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("dolt: unmarshaling parameters: %w", err)
	}
	return m, nil
}

func (t *txImpl) loadDependencies(ctx context.Context, jobID int64) (map[int64]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT jd.depends_on_id, j.name
		FROM job_dependencies jd
		JOIN jobs j ON j.id = jd.depends_on_id
		WHERE jd.job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("dolt: loading dependencies for job %d: %w", jobID, err)
	}
	defer rows.Close()

	deps := map[int64]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("dolt: scanning dependency row: %w", err)
		}
		deps[id] = name
	}
	return deps, rows.Err()
}

func (t *txImpl) replaceDependencies(ctx context.Context, jobID int64, deps map[int64]string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM job_dependencies WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("dolt: clearing dependencies for job %d: %w", jobID, err)
	}
	for depID := range deps {
		if _, err := t.tx.ExecContext(ctx, `INSERT INTO job_dependencies (job_id, depends_on_id) VALUES (?, ?)`, jobID, depID); err != nil {
			return fmt.Errorf("dolt: inserting dependency %d->%d: %w", jobID, depID, err)
		}
	}
	return nil
}

func (t *txImpl) scanJob(ctx context.Context, row interface {
	Scan(dest ...any) error
}) (*types.Job, error) {
	var j types.Job
	var paramsJSON, createdAt, updatedAt string
	if err := row.Scan(&j.ID, &j.ProjectID, &j.TaskID, &j.Name, &paramsJSON, &j.Status, &j.Priority, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	params, err := unmarshalParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	j.Parameters = params

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("dolt: parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("dolt: parsing updated_at: %w", err)
	}

	deps, err := t.loadDependencies(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	j.Dependencies = deps

	return &j, nil
}

const jobColumns = `id, project_id, task_id, name, parameters, status, priority, created_at, updated_at`

// isUniqueViolation recognizes MySQL/Dolt's duplicate-key error text
// ("Error 1062: Duplicate entry ... for key ..."), the equivalent of the
// sqlite adapter's "UNIQUE constraint failed" check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate entry")
}
