package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

type createJobRequest struct {
	ProjectID    int64             `json:"project_id"`
	TaskID       int64             `json:"task_id"`
	Name         string            `json:"name"`
	Parameters   map[string]string `json:"parameters"`
	Priority     int               `json:"priority"`
	Dependencies map[int64]string  `json:"dependencies"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}
	job, err := s.engine.CreateJob(r.Context(), req.ProjectID, req.TaskID, req.Name, req.Parameters, req.Priority, req.Dependencies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobsQuery(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		writeError(w, werrors.Validation("project_id query parameter required"))
		return
	}
	list, err := s.engine.ListJobs(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.engine.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type updateJobRequest struct {
	Name         *string           `json:"name"`
	Parameters   map[string]string `json:"parameters"`
	Priority     *int              `json:"priority"`
	Dependencies map[int64]string  `json:"dependencies"`
	Status       *types.JobStatus  `json:"status"`
}

// handleUpdateJob serves PUT /jobs/{id}. A present "status" field routes
// through the lifecycle controller (C4) instead of the plain field patch,
// since that is the only avenue the worker loop (C6) has to report RUNNING
// / COMPLETED / FAILED back to the broker over HTTP.
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}

	if req.Status != nil {
		result, err := s.engine.Transition(r.Context(), id, *req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if req.Dependencies != nil {
		if _, err := s.engine.UpdateJobDependencies(r.Context(), id, req.Dependencies); err != nil {
			writeError(w, err)
			return
		}
	}

	job, err := s.engine.UpdateJob(r.Context(), id, store.JobPatch{
		Name:       req.Name,
		Parameters: req.Parameters,
		Priority:   req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.DeleteJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobDependencies(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := s.engine.DependencyReport(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.engine.Retry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type batchJobEntry struct {
	TaskID       int64             `json:"task_id"`
	Name         string            `json:"name"`
	Parameters   map[string]string `json:"parameters"`
	Priority     int               `json:"priority"`
	Dependencies map[int64]string  `json:"dependencies"`
}

type batchCreateRequest struct {
	Jobs []batchJobEntry `json:"jobs"`
}

func (s *Server) handleBatchCreateJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}

	specs := make([]engine.BatchJobSpec, len(req.Jobs))
	for i, j := range req.Jobs {
		specs[i] = engine.BatchJobSpec{
			TaskID:       j.TaskID,
			Name:         j.Name,
			Parameters:   j.Parameters,
			Priority:     j.Priority,
			Dependencies: j.Dependencies,
		}
	}

	created, err := s.engine.BatchCreateJobs(r.Context(), projectID, specs)
	if err != nil {
		writeError(w, err)
		return
	}

	ids := make([]int64, len(created))
	for i, job := range created {
		ids[i] = job.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": len(created), "job_ids": ids})
}
