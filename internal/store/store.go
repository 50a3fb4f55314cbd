// Package store defines the C1 state-model contract: typed records are in
// internal/types, this package exposes the transactional CRUD and
// row-locking primitives every backend adapter must implement. The
// dependency resolver, dispatch selector, lifecycle controller, and
// worker registry (internal/engine) are written purely against this
// interface, so a single implementation of C2-C5 runs against either the
// sqlite adapter (internal/store/sqlite) or the in-memory one
// (internal/store/memory).
package store

import (
	"context"
	"time"

	"github.com/whatsnext/whatsnext/internal/types"
)

// ProjectPatch carries the mutable subset of a Project update. Nil fields
// are left unchanged.
type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *types.ProjectStatus
}

// TaskPatch carries the mutable subset of a Task update.
type TaskPatch struct {
	Name                 *string
	CommandTemplate      *string
	RequiredCPU          *int
	RequiredAccelerators *int
}

// JobPatch carries the mutable subset of a Job update outside of status
// transitions, which go through Tx.TransitionJob instead.
type JobPatch struct {
	Name         *string
	Parameters   map[string]string
	Priority     *int
	Dependencies map[int64]string
}

// WorkerPatch carries a partial capacity update (4.5 update_capacity).
// Nil fields are left unchanged; a fully-nil patch is a no-op.
type WorkerPatch struct {
	CPU          *int
	Accelerators *int
}

// Store is the top-level handle a backend adapter returns from its
// constructor. All mutation happens inside a transaction obtained via
// WithTx; read-only convenience methods may run outside a transaction.
type Store interface {
	// WithTx runs fn inside a single transaction, committing on success
	// and rolling back on any returned error. Nested calls within fn must
	// use the Tx passed in, not re-enter WithTx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources (connection pool, WASM runtime).
	Close() error

	// Healthy reports whether the store can currently serve reads, for
	// GET /checkdb.
	Healthy(ctx context.Context) error
}

// Tx is the set of row-scoped operations available inside one
// transaction. Every engine operation that mutates state takes a Tx, not
// a Store, so callers cannot forget to wrap multi-step transitions.
type Tx interface {
	// --- Projects ---

	CreateProject(ctx context.Context, name, description string) (*types.Project, error)
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetProjectByName(ctx context.Context, name string) (*types.Project, error)
	ListProjects(ctx context.Context) ([]*types.Project, error)
	UpdateProject(ctx context.Context, id int64, patch ProjectPatch) (*types.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	// --- Tasks ---

	CreateTask(ctx context.Context, projectID int64, name, commandTemplate string, requiredCPU, requiredAccelerators int) (*types.Task, error)
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	GetTaskByName(ctx context.Context, projectID int64, name string) (*types.Task, error)
	ListTasks(ctx context.Context, projectID int64) ([]*types.Task, error)
	UpdateTask(ctx context.Context, id int64, patch TaskPatch) (*types.Task, error)
	DeleteTask(ctx context.Context, id int64) error

	// --- Jobs ---

	CreateJob(ctx context.Context, projectID, taskID int64, name string, parameters map[string]string, priority int, dependencies map[int64]string) (*types.Job, error)
	GetJob(ctx context.Context, id int64) (*types.Job, error)
	// GetJobForUpdate locks the job row (SELECT ... FOR UPDATE equivalent),
	// for use by the dispatch selector and lifecycle controller.
	GetJobForUpdate(ctx context.Context, id int64) (*types.Job, error)
	ListJobs(ctx context.Context, projectID int64) ([]*types.Job, error)
	// ListJobsByStatus returns every job in the project with the given
	// status, in priority-descending, id-ascending order (4.2.5, 4.3).
	ListJobsByStatus(ctx context.Context, projectID int64, status types.JobStatus) ([]*types.Job, error)
	UpdateJob(ctx context.Context, id int64, patch JobPatch) (*types.Job, error)
	// TransitionJob applies a status change and bumps updated_at. Callers
	// must have already validated legality (internal/engine does this);
	// the store layer simply persists it atomically with the lock held.
	TransitionJob(ctx context.Context, id int64, newStatus types.JobStatus) (*types.Job, error)
	DeleteJob(ctx context.Context, id int64) error
	DeletePendingJobs(ctx context.Context, projectID int64) (int, error)

	// ListDependentsOf returns every job in the project whose dependency
	// map contains jobID, for one BFS step of failure propagation (4.2.4).
	ListDependentsOf(ctx context.Context, projectID, jobID int64) ([]*types.Job, error)

	// ListDependenciesForJobs batches dependency lookups for a set of job
	// ids, avoiding one round trip per job. Every requested id that exists
	// gets an entry, possibly an empty slice.
	ListDependenciesForJobs(ctx context.Context, jobIDs []int64) (map[int64][]types.Dependency, error)

	// --- Workers ---

	RegisterWorker(ctx context.Context, id, name, entity, description string, capacity types.Capacity, now time.Time) (*types.Worker, error)
	GetWorker(ctx context.Context, id string) (*types.Worker, error)
	ListWorkers(ctx context.Context) ([]*types.Worker, error)
	HeartbeatWorker(ctx context.Context, id string, now time.Time) (*types.Worker, error)
	DeactivateWorker(ctx context.Context, id string) (*types.Worker, error)
	UpdateWorkerCapacity(ctx context.Context, id string, patch WorkerPatch) (*types.Worker, error)
	DeleteWorker(ctx context.Context, id string) error
}
