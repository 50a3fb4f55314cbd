package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/whatsnext/whatsnext/internal/store"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

type registerWorkerRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Entity       string `json:"entity"`
	Description  string `json:"description"`
	CPU          int    `json:"cpu"`
	Accelerators int    `json:"accelerators"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}
	if req.ID == "" {
		writeError(w, werrors.Validation("client id is required"))
		return
	}
	capacity := types.Capacity{CPU: req.CPU, Accelerators: req.Accelerators}.Normalize()
	worker, err := s.engine.RegisterWorker(r.Context(), req.ID, req.Name, req.Entity, req.Description, capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListWorkers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	worker, err := s.engine.GetWorker(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

type updateWorkerRequest struct {
	CPU          *int `json:"cpu"`
	Accelerators *int `json:"accelerators"`
}

func (s *Server) handleUpdateWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, werrors.Validation("invalid request body: %v", err))
		return
	}
	worker, err := s.engine.UpdateWorkerCapacity(r.Context(), id, store.WorkerPatch{
		CPU:          req.CPU,
		Accelerators: req.Accelerators,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleDeleteWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.DeleteWorker(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	worker, err := s.engine.Heartbeat(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleDeactivateWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	worker, err := s.engine.DeactivateWorker(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}
