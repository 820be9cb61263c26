package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/m-voss/devcell/internal/config"
)

type Server struct {
	cfg      *config.Config
	ctrl     LifecycleService
	projects ProjectStore
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewServer(cfg *config.Config, ctrl LifecycleService, projects ProjectStore, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		projects: projects,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.authMiddleware(s.requestIDMiddleware(s.mux))
}

func (s *Server) routes() {
	// Runtime lifecycle
	s.mux.HandleFunc("POST /v1/runtime/boot", s.handleBoot)
	s.mux.HandleFunc("GET /v1/runtime", s.handleStatus)
	s.mux.HandleFunc("GET /v1/runtime/stats", s.handleStats)
	s.mux.HandleFunc("POST /v1/runtime/stop", s.handleStop)
	s.mux.HandleFunc("DELETE /v1/runtime", s.handleDestroy)
	s.mux.HandleFunc("POST /v1/runtime/force-cleanup", s.handleForceCleanup)
	s.mux.HandleFunc("POST /v1/runtime/shell", s.handleShellStream)

	// Projects
	s.mux.HandleFunc("POST /v1/projects/{id}/switch", s.handleSwitch)
	s.mux.HandleFunc("POST /v1/projects/{id}/start", s.handleStart)
	s.mux.HandleFunc("POST /v1/projects/{id}/start/stream", s.handleStartStream)
	s.mux.HandleFunc("GET /v1/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	s.mux.HandleFunc("DELETE /v1/projects/{id}", s.handleDeleteProject)

	// Health check (no auth)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
