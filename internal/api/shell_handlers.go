package api

import (
	"net/http"
)

// handleShellStream opens an interactive shell inside the runtime and
// streams its output as SSE chunk events until the shell exits or the
// client disconnects. Disconnecting kills the shell; the registry also
// terminates it on any later cleanup.
func (s *Server) handleShellStream(w http.ResponseWriter, r *http.Request) {
	proc, err := s.ctrl.OpenShell(r.Context())
	if err != nil {
		s.logger.Error("open shell", "error", err)
		writeAPIError(w, err)
		return
	}

	flusher, err := setupSSE(w)
	if err != nil {
		proc.Kill()
		writeValidationError(w, err.Error())
		return
	}
	s.logger.Debug("shell stream opened")

	outCh := proc.Output()
	for {
		select {
		case chunk, ok := <-outCh:
			if !ok {
				// Output is done; only the exit code remains.
				outCh = nil
				continue
			}
			sendSSEEvent(w, flusher, "chunk", map[string]string{"chunk": chunk})
		case code := <-proc.Exit():
			drainShellOutput(w, flusher, outCh)
			sendSSEEvent(w, flusher, "done", map[string]int{"exit_code": code})
			return
		case <-r.Context().Done():
			proc.Kill()
			return
		}
	}
}

// drainShellOutput flushes whatever output is already buffered once the
// exit code has been observed.
func drainShellOutput(w http.ResponseWriter, flusher http.Flusher, outCh <-chan string) {
	for {
		select {
		case chunk, ok := <-outCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "chunk", map[string]string{"chunk": chunk})
		default:
			return
		}
	}
}
