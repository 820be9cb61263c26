package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/m-voss/devcell/internal/lifecycle"
	"github.com/m-voss/devcell/protocol"
)

// logBuffer collects operation log lines. Operations stream output from
// goroutines, so access is locked.
type logBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *logBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

func (b *logBuffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	logs := &logBuffer{}
	s.logger.Debug("boot request")
	if _, err := s.ctrl.GetOrBoot(r.Context(), logs.add); err != nil {
		s.logger.Error("boot", "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": s.ctrl.Status(),
		"logs":   logs.snapshot(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateProjectID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req protocol.SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if len(req.Files) == 0 {
		writeValidationError(w, "files tree is required")
		return
	}

	s.logger.Debug("switch project", "project_id", id, "top_level_entries", len(req.Files))
	logs := &logBuffer{}
	if err := s.ctrl.SwitchProject(r.Context(), id, req.Files, logs.add); err != nil {
		s.logger.Error("switch project", "project_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": s.ctrl.Status(),
		"logs":   logs.snapshot(),
	})
}

// requireMounted verifies the requested project is the one currently
// mounted on the runtime.
func (s *Server) requireMounted(id string) error {
	st := s.ctrl.Status()
	if !st.Exists || st.ProjectID != id {
		return fmt.Errorf("%w: project %s is not mounted", lifecycle.ErrNoSession, id)
	}
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateProjectID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req protocol.StartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, "invalid json: "+err.Error())
			return
		}
	}
	if err := s.requireMounted(id); err != nil {
		writeAPIError(w, err)
		return
	}

	s.logger.Debug("start project", "project_id", id, "static", req.Static)
	logs := &logBuffer{}
	resp, err := s.ctrl.StartProject(r.Context(), logs.add, lifecycle.StartOpts{Static: req.Static})
	if err != nil {
		s.logger.Error("start project", "project_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": resp,
		"logs":   logs.snapshot(),
	})
}

// handleStartStream is the SSE variant of start: log lines are streamed
// as they arrive, then a final done or error event.
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateProjectID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req protocol.StartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, "invalid json: "+err.Error())
			return
		}
	}
	if err := s.requireMounted(id); err != nil {
		writeAPIError(w, err)
		return
	}

	flusher, err := setupSSE(w)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s.logger.Debug("start project stream", "project_id", id, "static", req.Static)

	lineCh := make(chan string, 64)
	type outcome struct {
		resp *protocol.StartResponse
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := s.ctrl.StartProject(r.Context(), func(line string) {
			select {
			case lineCh <- line:
			default:
				// A slow client must not stall the start protocol.
			}
		}, lifecycle.StartOpts{Static: req.Static})
		done <- outcome{resp: resp, err: err}
	}()

	for {
		select {
		case line := <-lineCh:
			sendSSEEvent(w, flusher, "log", map[string]string{"line": line})
		case out := <-done:
			// Drain anything logged after the last select pass.
			for {
				select {
				case line := <-lineCh:
					sendSSEEvent(w, flusher, "log", map[string]string{"line": line})
					continue
				default:
				}
				break
			}
			if out.err != nil {
				sendSSEEvent(w, flusher, "error", map[string]string{"error": out.err.Error()})
				return
			}
			sendSSEEvent(w, flusher, "done", out.resp)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, nil
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("stop request")
	logs := &logBuffer{}
	if err := s.ctrl.StopProject(r.Context(), logs.add); err != nil {
		s.logger.Error("stop", "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": s.ctrl.Status(),
		"logs":   logs.snapshot(),
	})
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("destroy request")
	logs := &logBuffer{}
	if err := s.ctrl.DestroyRuntime(r.Context(), logs.add); err != nil {
		s.logger.Error("destroy", "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"logs": logs.snapshot(),
	})
}

func (s *Server) handleForceCleanup(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("force cleanup request")
	logs := &logBuffer{}
	zombie, err := s.ctrl.ForceCleanup(r.Context(), logs.add)
	if err != nil {
		s.logger.Error("force cleanup", "error", err)
		writeAPIError(w, err)
		return
	}

	msg := "runtime state reset"
	if zombie {
		msg = "zombie runtime instance detected; a full application restart is required"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": protocol.ForceCleanupResponse{
			ZombieDetected: zombie,
			Message:        msg,
		},
		"logs": logs.snapshot(),
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List()
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if projects == nil {
		projects = []*protocol.ProjectStatus{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateProjectID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	project, err := s.projects.Get(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := ValidateProjectID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := s.projects.Delete(id); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
