// Package memory implements internal/store.Store entirely in process
// memory, guarded by a single mutex held for the duration of each
// transaction. It exists for fast engine property tests (spec.md §8) that
// would otherwise pay SQLite's overhead per case; whatsnextd itself always
// opens the sqlite store. The teacher's own from-scratch in-memory store
// (internal/storage/memory) only survives in this pack as a test file, so
// this adapter's shape is grounded on internal/store.Tx itself plus the
// teacher's general map-of-structs convention seen throughout its code.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// Store is the in-memory implementation of store.Store. A single mutex
// stands in for SQLite's BEGIN IMMEDIATE write lock: WithTx takes it for
// the whole closure, so only one transaction runs at a time, matching the
// "exactly one writer" invariant of spec.md §3 without row-level
// granularity.
type Store struct {
	mu sync.Mutex

	nextProjectID int64
	nextTaskID    int64
	nextJobID     int64

	projects map[int64]*types.Project
	tasks    map[int64]*types.Task
	jobs     map[int64]*types.Job
	workers  map[string]*types.Worker
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		nextProjectID: 1,
		nextTaskID:    1,
		nextJobID:     1,
		projects:      map[int64]*types.Project{},
		tasks:         map[int64]*types.Task{},
		jobs:          map[int64]*types.Job{},
		workers:       map[string]*types.Worker{},
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Healthy(ctx context.Context) error { return nil }

// WithTx takes the store-wide lock, runs fn against a snapshot-free view
// (mutations are applied directly, so a returned error does not roll
// back in-place edits — engine code is written to validate before
// mutating, the same discipline the sqlite adapter's callers already
// follow, so this is safe in practice for this codebase's call sites).
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txImpl{s: s})
}

type txImpl struct {
	s *Store
}

var _ store.Tx = (*txImpl)(nil)

func cloneJob(j *types.Job) *types.Job {
	cp := *j
	cp.Parameters = cloneStringMap(j.Parameters)
	cp.Dependencies = cloneDepMap(j.Dependencies)
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneDepMap(m map[int64]string) map[int64]string {
	out := make(map[int64]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// --- Projects ---

func (t *txImpl) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	for _, p := range t.s.projects {
		if p.Name == name {
			return nil, werrors.Conflict("project %q already exists", name)
		}
	}
	now := time.Now()
	p := &types.Project{
		ID:          t.s.nextProjectID,
		Name:        name,
		Description: description,
		Status:      types.ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.s.projects[p.ID] = p
	t.s.nextProjectID++
	cp := *p
	return &cp, nil
}

func (t *txImpl) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	p, ok := t.s.projects[id]
	if !ok {
		return nil, werrors.NotFound("project %d not found", id)
	}
	cp := *p
	return &cp, nil
}

func (t *txImpl) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	for _, p := range t.s.projects {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, werrors.NotFound("project %q not found", name)
}

func (t *txImpl) ListProjects(ctx context.Context) ([]*types.Project, error) {
	out := make([]*types.Project, 0, len(t.s.projects))
	for _, p := range t.s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txImpl) UpdateProject(ctx context.Context, id int64, patch store.ProjectPatch) (*types.Project, error) {
	p, ok := t.s.projects[id]
	if !ok {
		return nil, werrors.NotFound("project %d not found", id)
	}
	if patch.Name != nil {
		for otherID, other := range t.s.projects {
			if otherID != id && other.Name == *patch.Name {
				return nil, werrors.Conflict("project name already in use")
			}
		}
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (t *txImpl) DeleteProject(ctx context.Context, id int64) error {
	if _, ok := t.s.projects[id]; !ok {
		return werrors.NotFound("project %d not found", id)
	}
	delete(t.s.projects, id)
	for tid, task := range t.s.tasks {
		if task.ProjectID == id {
			delete(t.s.tasks, tid)
		}
	}
	for jid, job := range t.s.jobs {
		if job.ProjectID == id {
			delete(t.s.jobs, jid)
		}
	}
	return nil
}

// --- Tasks ---

func (t *txImpl) requireActiveProject(id int64) error {
	p, ok := t.s.projects[id]
	if !ok {
		return werrors.NotFound("project %d not found", id)
	}
	if p.Status == types.ProjectArchived {
		return werrors.Validation("project %d is archived", id)
	}
	return nil
}

func (t *txImpl) CreateTask(ctx context.Context, projectID int64, name, commandTemplate string, requiredCPU, requiredAccelerators int) (*types.Task, error) {
	if err := t.requireActiveProject(projectID); err != nil {
		return nil, err
	}
	for _, task := range t.s.tasks {
		if task.ProjectID == projectID && task.Name == name {
			return nil, werrors.Conflict("task %q already exists in project %d", name, projectID)
		}
	}
	now := time.Now()
	task := &types.Task{
		ID:                   t.s.nextTaskID,
		ProjectID:            projectID,
		Name:                 name,
		CommandTemplate:      commandTemplate,
		RequiredCPU:          requiredCPU,
		RequiredAccelerators: requiredAccelerators,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	t.s.tasks[task.ID] = task
	t.s.nextTaskID++
	cp := *task
	return &cp, nil
}

func (t *txImpl) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, werrors.NotFound("task %d not found", id)
	}
	cp := *task
	return &cp, nil
}

func (t *txImpl) GetTaskByName(ctx context.Context, projectID int64, name string) (*types.Task, error) {
	for _, task := range t.s.tasks {
		if task.ProjectID == projectID && task.Name == name {
			cp := *task
			return &cp, nil
		}
	}
	return nil, werrors.NotFound("task %q not found in project %d", name, projectID)
}

func (t *txImpl) ListTasks(ctx context.Context, projectID int64) ([]*types.Task, error) {
	out := make([]*types.Task, 0)
	for _, task := range t.s.tasks {
		if task.ProjectID == projectID {
			cp := *task
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txImpl) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (*types.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, werrors.NotFound("task %d not found", id)
	}
	if err := t.requireActiveProject(task.ProjectID); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		for otherID, other := range t.s.tasks {
			if otherID != id && other.ProjectID == task.ProjectID && other.Name == *patch.Name {
				return nil, werrors.Conflict("task name already in use in this project")
			}
		}
		task.Name = *patch.Name
	}
	if patch.CommandTemplate != nil {
		task.CommandTemplate = *patch.CommandTemplate
	}
	if patch.RequiredCPU != nil {
		task.RequiredCPU = *patch.RequiredCPU
	}
	if patch.RequiredAccelerators != nil {
		task.RequiredAccelerators = *patch.RequiredAccelerators
	}
	task.UpdatedAt = time.Now()
	cp := *task
	return &cp, nil
}

func (t *txImpl) DeleteTask(ctx context.Context, id int64) error {
	if _, ok := t.s.tasks[id]; !ok {
		return werrors.NotFound("task %d not found", id)
	}
	delete(t.s.tasks, id)
	for jid, job := range t.s.jobs {
		if job.TaskID == id {
			delete(t.s.jobs, jid)
		}
	}
	return nil
}

// --- Jobs ---

func (t *txImpl) CreateJob(ctx context.Context, projectID, taskID int64, name string, parameters map[string]string, priority int, dependencies map[int64]string) (*types.Job, error) {
	if err := t.requireActiveProject(projectID); err != nil {
		return nil, err
	}
	task, ok := t.s.tasks[taskID]
	if !ok {
		return nil, werrors.NotFound("task %d not found", taskID)
	}
	if task.ProjectID != projectID {
		return nil, werrors.Validation("task %d does not belong to project %d", taskID, projectID)
	}
	for depID := range dependencies {
		dep, ok := t.s.jobs[depID]
		if !ok {
			return nil, werrors.Validation("dependency %d does not exist", depID)
		}
		if dep.ProjectID != projectID {
			return nil, werrors.Validation("dependency %d belongs to a different project", depID)
		}
	}

	now := time.Now()
	job := &types.Job{
		ID:           t.s.nextJobID,
		ProjectID:    projectID,
		TaskID:       taskID,
		Name:         name,
		Parameters:   cloneStringMap(parameters),
		Status:       types.StatusPending,
		Priority:     priority,
		Dependencies: cloneDepMap(dependencies),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	t.s.jobs[job.ID] = job
	t.s.nextJobID++
	return cloneJob(job), nil
}

func (t *txImpl) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	j, ok := t.s.jobs[id]
	if !ok {
		return nil, werrors.NotFound("job %d not found", id)
	}
	return cloneJob(j), nil
}

// GetJobForUpdate is identical to GetJob: the store-wide mutex held by
// WithTx for the whole transaction already serializes writers, so there
// is no separate row-lock step to perform.
func (t *txImpl) GetJobForUpdate(ctx context.Context, id int64) (*types.Job, error) {
	return t.GetJob(ctx, id)
}

func (t *txImpl) ListJobs(ctx context.Context, projectID int64) ([]*types.Job, error) {
	out := make([]*types.Job, 0)
	for _, j := range t.s.jobs {
		if j.ProjectID == projectID {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txImpl) ListJobsByStatus(ctx context.Context, projectID int64, status types.JobStatus) ([]*types.Job, error) {
	out := make([]*types.Job, 0)
	for _, j := range t.s.jobs {
		if j.ProjectID == projectID && j.Status == status {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txImpl) UpdateJob(ctx context.Context, id int64, patch store.JobPatch) (*types.Job, error) {
	j, ok := t.s.jobs[id]
	if !ok {
		return nil, werrors.NotFound("job %d not found", id)
	}
	if err := t.requireActiveProject(j.ProjectID); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		j.Name = *patch.Name
	}
	if patch.Parameters != nil {
		j.Parameters = cloneStringMap(patch.Parameters)
	}
	if patch.Priority != nil {
		j.Priority = *patch.Priority
	}
	if patch.Dependencies != nil {
		j.Dependencies = cloneDepMap(patch.Dependencies)
	}
	j.UpdatedAt = time.Now()
	return cloneJob(j), nil
}

func (t *txImpl) TransitionJob(ctx context.Context, id int64, newStatus types.JobStatus) (*types.Job, error) {
	j, ok := t.s.jobs[id]
	if !ok {
		return nil, werrors.NotFound("job %d not found", id)
	}
	j.Status = newStatus
	j.UpdatedAt = time.Now()
	return cloneJob(j), nil
}

func (t *txImpl) DeleteJob(ctx context.Context, id int64) error {
	if _, ok := t.s.jobs[id]; !ok {
		return werrors.NotFound("job %d not found", id)
	}
	delete(t.s.jobs, id)
	return nil
}

func (t *txImpl) DeletePendingJobs(ctx context.Context, projectID int64) (int, error) {
	n := 0
	for id, j := range t.s.jobs {
		if j.ProjectID == projectID && j.Status == types.StatusPending {
			delete(t.s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (t *txImpl) ListDependentsOf(ctx context.Context, projectID, jobID int64) ([]*types.Job, error) {
	out := make([]*types.Job, 0)
	for _, j := range t.s.jobs {
		if j.ProjectID != projectID {
			continue
		}
		if _, ok := j.Dependencies[jobID]; ok {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (t *txImpl) ListDependenciesForJobs(ctx context.Context, jobIDs []int64) (map[int64][]types.Dependency, error) {
	out := make(map[int64][]types.Dependency, len(jobIDs))
	for _, id := range jobIDs {
		j, ok := t.s.jobs[id]
		if !ok {
			out[id] = nil
			continue
		}
		deps := make([]types.Dependency, 0, len(j.Dependencies))
		for depID, depName := range j.Dependencies {
			deps = append(deps, types.Dependency{JobID: depID, JobName: depName})
		}
		sort.Slice(deps, func(i, k int) bool { return deps[i].JobID < deps[k].JobID })
		out[id] = deps
	}
	return out, nil
}

// --- Workers ---

func (t *txImpl) RegisterWorker(ctx context.Context, id, name, entity, description string, capacity types.Capacity, now time.Time) (*types.Worker, error) {
	capacity = capacity.Normalize()
	w, ok := t.s.workers[id]
	if !ok {
		w = &types.Worker{ID: id, CreatedAt: now}
		t.s.workers[id] = w
	}
	w.Name = name
	w.Entity = entity
	w.Description = description
	w.Capacity = capacity
	w.IsActive = true
	w.LastHeartbeat = now
	cp := *w
	return &cp, nil
}

func (t *txImpl) GetWorker(ctx context.Context, id string) (*types.Worker, error) {
	w, ok := t.s.workers[id]
	if !ok {
		return nil, werrors.NotFound("worker %q not found", id)
	}
	cp := *w
	return &cp, nil
}

func (t *txImpl) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	out := make([]*types.Worker, 0, len(t.s.workers))
	for _, w := range t.s.workers {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *txImpl) HeartbeatWorker(ctx context.Context, id string, now time.Time) (*types.Worker, error) {
	w, ok := t.s.workers[id]
	if !ok {
		return nil, werrors.NotFound("worker %q not found", id)
	}
	w.LastHeartbeat = now
	cp := *w
	return &cp, nil
}

func (t *txImpl) DeactivateWorker(ctx context.Context, id string) (*types.Worker, error) {
	w, ok := t.s.workers[id]
	if !ok {
		return nil, werrors.NotFound("worker %q not found", id)
	}
	w.IsActive = false
	cp := *w
	return &cp, nil
}

func (t *txImpl) UpdateWorkerCapacity(ctx context.Context, id string, patch store.WorkerPatch) (*types.Worker, error) {
	w, ok := t.s.workers[id]
	if !ok {
		return nil, werrors.NotFound("worker %q not found", id)
	}
	if patch.CPU != nil {
		w.Capacity.CPU = max(*patch.CPU, 0)
	}
	if patch.Accelerators != nil {
		w.Capacity.Accelerators = max(*patch.Accelerators, 0)
	}
	cp := *w
	return &cp, nil
}

func (t *txImpl) DeleteWorker(ctx context.Context, id string) error {
	if _, ok := t.s.workers[id]; !ok {
		return werrors.NotFound("worker %q not found", id)
	}
	delete(t.s.workers, id)
	return nil
}
