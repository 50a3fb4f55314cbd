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

func (t *txImpl) CreateJob(ctx context.Context, projectID, taskID int64, name string, parameters map[string]string, priority int, dependencies map[int64]string) (*types.Job, error) {
	if err := t.requireActiveProject(ctx, projectID); err != nil {
		return nil, err
	}
	task, err := t.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.ProjectID != projectID {
		return nil, werrors.Validation("task %d does not belong to project %d", taskID, projectID)
	}

	for depID := range dependencies {
		dep, err := t.GetJob(ctx, depID)
		if err != nil {
			return nil, werrors.Validation("dependency %d does not exist", depID)
		}
		if dep.ProjectID != projectID {
			return nil, werrors.Validation("dependency %d belongs to a different project", depID)
		}
	}

	paramsJSON, err := marshalParams(parameters)
	if err != nil {
		return nil, err
	}

	now := formatTime(timeNow())
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO jobs (project_id, task_id, name, parameters, status, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, taskID, name, paramsJSON, types.StatusPending, priority, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading new job id: %w", err)
	}

	if len(dependencies) > 0 {
		// Cycle detection (4.2.3) happens one layer up in internal/engine,
		// which has the whole-graph view; this layer only persists the
		// edges once the engine has validated them.
		if err := t.replaceDependencies(ctx, id, dependencies); err != nil {
			return nil, err
		}
	}

	return t.GetJob(ctx, id)
}

func (t *txImpl) getJobRow(ctx context.Context, id int64, forUpdate bool) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	row := t.tx.QueryRowContext(ctx, query, id)
	j, err := t.scanJob(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, werrors.NotFound("job %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting job %d: %w", id, err)
	}
	_ = forUpdate // BEGIN IMMEDIATE already serializes writers; no separate lock statement needed under SQLite.
	return j, nil
}

func (t *txImpl) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	return t.getJobRow(ctx, id, false)
}

// GetJobForUpdate is identical to GetJob under SQLite: the enclosing
// transaction already started with BEGIN IMMEDIATE (internal/store/sqlite.
// Store.WithTx), which takes the write lock for the whole transaction, so
// there is no separate per-row lock statement the way Postgres's SELECT
// ... FOR UPDATE needs one.
func (t *txImpl) GetJobForUpdate(ctx context.Context, id int64) (*types.Job, error) {
	return t.getJobRow(ctx, id, true)
}

func (t *txImpl) ListJobs(ctx context.Context, projectID int64) ([]*types.Job, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		j, err := t.scanJob(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListJobsByStatus returns jobs in priority-descending, id-ascending
// order, matching the ordering required by spec.md §4.2.5 and §4.3.
func (t *txImpl) ListJobsByStatus(ctx context.Context, projectID int64, status types.JobStatus) ([]*types.Job, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? AND status = ? ORDER BY priority DESC, id ASC`,
		projectID, status)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing jobs by status: %w", err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		j, err := t.scanJob(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (t *txImpl) UpdateJob(ctx context.Context, id int64, patch store.JobPatch) (*types.Job, error) {
	existing, err := t.GetJob(ctx, id)
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
	if patch.Parameters != nil {
		paramsJSON, err := marshalParams(patch.Parameters)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "parameters = ?")
		args = append(args, paramsJSON)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(timeNow()))
		args = append(args, id)
		query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("sqlite: updating job %d: %w", id, err)
		}
	}

	if patch.Dependencies != nil {
		// Cycle detection happens in internal/engine before this is called.
		if err := t.replaceDependencies(ctx, id, patch.Dependencies); err != nil {
			return nil, err
		}
	}

	return t.GetJob(ctx, id)
}

// TransitionJob persists a status change. Legality of the transition is
// validated by internal/engine (C4) before this is invoked; this layer
// trusts the caller and simply writes it under the transaction's lock.
func (t *txImpl) TransitionJob(ctx context.Context, id int64, newStatus types.JobStatus) (*types.Job, error) {
	if _, err := t.GetJobForUpdate(ctx, id); err != nil {
		return nil, err
	}
	now := formatTime(timeNow())
	if _, err := t.tx.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, newStatus, now, id); err != nil {
		return nil, fmt.Errorf("sqlite: transitioning job %d: %w", id, err)
	}
	return t.GetJob(ctx, id)
}

func (t *txImpl) DeleteJob(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return werrors.NotFound("job %d not found", id)
	}
	return nil
}

func (t *txImpl) DeletePendingJobs(ctx context.Context, projectID int64) (int, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE project_id = ? AND status = ?`, projectID, types.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting pending jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	return int(n), nil
}

// ListDependentsOf returns every job in the project whose dependency map
// contains jobID, for one BFS step of failure propagation (4.2.4).
func (t *txImpl) ListDependentsOf(ctx context.Context, projectID, jobID int64) ([]*types.Job, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+prefixedJobColumns("j")+`
		FROM jobs j
		JOIN job_dependencies jd ON jd.job_id = j.id
		WHERE jd.depends_on_id = ? AND j.project_id = ?
		ORDER BY j.id ASC`, jobID, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing dependents of job %d: %w", jobID, err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		j, err := t.scanJob(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning dependent job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func prefixedJobColumns(alias string) string {
	cols := strings.Split(jobColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// ListDependenciesForJobs batches dependency lookups for a set of job ids
// in one query, adapted from the teacher's GetDependenciesForIssues
// (internal/storage/sqlite/batch_dependencies.go) to avoid one round trip
// per job when the dispatch selector evaluates a whole candidate page.
func (t *txImpl) ListDependenciesForJobs(ctx context.Context, jobIDs []int64) (map[int64][]types.Dependency, error) {
	out := make(map[int64][]types.Dependency, len(jobIDs))
	for _, id := range jobIDs {
		out[id] = nil
	}
	if len(jobIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(jobIDs))
	args := make([]any, len(jobIDs))
	for i, id := range jobIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT jd.job_id, jd.depends_on_id, j.name
		FROM job_dependencies jd
		JOIN jobs j ON j.id = jd.depends_on_id
		WHERE jd.job_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: batch loading dependencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var jobID, depID int64
		var depName string
		if err := rows.Scan(&jobID, &depID, &depName); err != nil {
			return nil, fmt.Errorf("sqlite: scanning batch dependency row: %w", err)
		}
		out[jobID] = append(out[jobID], types.Dependency{JobID: depID, JobName: depName})
	}
	return out, rows.Err()
}
