package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

type createTaskRequest struct {
	ProjectID            int64  `json:"project_id"`
	Name                 string `json:"name"`
	CommandTemplate      string `json:"command_template"`
	RequiredCPU          int    `json:"required_cpu"`
	RequiredAccelerators int    `json:"required_accelerators"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}
	t, err := s.engine.CreateTask(r.Context(), req.ProjectID, req.Name, req.CommandTemplate, req.RequiredCPU, req.RequiredAccelerators)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		writeError(w, werrors.Validation("project_id query parameter required"))
		return
	}
	list, err := s.engine.ListTasks(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := s.engine.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetTaskByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil {
		writeError(w, werrors.Validation("project_id query parameter required"))
		return
	}
	t, err := s.engine.GetTaskByName(r.Context(), projectID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateTaskRequest struct {
	Name                 *string `json:"name"`
	CommandTemplate      *string `json:"command_template"`
	RequiredCPU          *int    `json:"required_cpu"`
	RequiredAccelerators *int    `json:"required_accelerators"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}
	t, err := s.engine.UpdateTask(r.Context(), id, store.TaskPatch{
		Name:                 req.Name,
		CommandTemplate:      req.CommandTemplate,
		RequiredCPU:          req.RequiredCPU,
		RequiredAccelerators: req.RequiredAccelerators,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.DeleteTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
