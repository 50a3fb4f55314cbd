// Package server implements the HTTP transport of spec.md §6: a chi
// router exposing the project/task/job/worker endpoint table, wrapped in
// the middleware chain (request id, recoverer, CORS, timeout, rate
// limit, API key auth) and a Prometheus /metrics endpoint. Grounded on
// jordigilh-kubernaut's chi-based API servers, since the teacher itself
// serves over a unix-socket JSON-RPC connection rather than HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/logging"
)

// Options configures Server construction.
type Options struct {
	APIKey          string
	RateLimitPerMin int // 0 disables rate limiting
	RequestTimeout  time.Duration
}

// Server hosts the broker's HTTP API over an Engine.
type Server struct {
	engine  *engine.Engine
	log     *logging.Logger
	opts    Options
	router  chi.Router
	metrics *dispatchMetrics
}

// New builds a Server with its full route table wired.
func New(e *engine.Engine, log *logging.Logger, opts Options) *Server {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{
		engine:  e,
		log:     log,
		opts:    opts,
		metrics: newDispatchMetrics(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	if s.opts.RateLimitPerMin > 0 {
		r.Use(newRateLimiter(s.opts.RateLimitPerMin).middleware)
	}

	r.Get("/", s.handleHealth)
	r.Get("/checkdb", s.handleCheckDB)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/", func(api chi.Router) {
		if s.opts.APIKey != "" {
			api.Use(s.authMiddleware)
		}

		api.Route("/projects", func(pr chi.Router) {
			pr.Get("/", s.handleListProjects)
			pr.Post("/", s.handleCreateProject)
			pr.Get("/name/{name}", s.handleGetProjectByName)
			pr.Delete("/name/{name}", s.handleDeleteProjectByName)
			pr.Route("/{id}", func(p chi.Router) {
				p.Get("/", s.handleGetProject)
				p.Put("/", s.handleUpdateProject)
				p.Delete("/", s.handleDeleteProject)
				p.Get("/fetch_job", s.handleFetchJob)
				p.Delete("/queue", s.handleDeleteQueue)
				p.Post("/jobs/batch", s.handleBatchCreateJobs)
				p.Delete("/jobs/{job_id}", s.handleDeleteProjectJob)
			})
		})

		api.Route("/tasks", func(tr chi.Router) {
			tr.Get("/", s.handleListTasks)
			tr.Post("/", s.handleCreateTask)
			tr.Get("/name/{name}", s.handleGetTaskByName)
			tr.Route("/{id}", func(t chi.Router) {
				t.Get("/", s.handleGetTask)
				t.Put("/", s.handleUpdateTask)
				t.Delete("/", s.handleDeleteTask)
			})
		})

		api.Route("/jobs", func(jr chi.Router) {
			jr.Get("/", s.handleListJobsQuery)
			jr.Post("/", s.handleCreateJob)
			jr.Route("/{id}", func(j chi.Router) {
				j.Get("/", s.handleGetJob)
				j.Put("/", s.handleUpdateJob)
				j.Delete("/", s.handleDeleteJob)
				j.Get("/dependencies", s.handleJobDependencies)
				j.Post("/retry", s.handleRetryJob)
			})
		})

		api.Route("/clients", func(cr chi.Router) {
			cr.Post("/register", s.handleRegisterWorker)
			cr.Get("/", s.handleListWorkers)
			cr.Route("/{id}", func(c chi.Router) {
				c.Get("/", s.handleGetWorker)
				c.Put("/", s.handleUpdateWorker)
				c.Delete("/", s.handleDeleteWorker)
				c.Post("/heartbeat", s.handleHeartbeat)
				c.Post("/deactivate", s.handleDeactivateWorker)
			})
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Healthy(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
