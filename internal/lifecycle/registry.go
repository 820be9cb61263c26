package lifecycle

import (
	"log/slog"
	"sync"

	"github.com/m-voss/devcell/internal/runtime"
)

// Registry tracks every spawned process (a distinguished shell plus any
// ad hoc command) so they can be bulk-terminated without the caller
// tracking handles individually.
type Registry struct {
	mu     sync.Mutex
	shell  runtime.Process
	procs  []runtime.Process
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// RegisterShell records p as the session's distinguished shell. At most
// one shell is tracked; a previously registered one is killed first.
func (r *Registry) RegisterShell(p runtime.Process) {
	r.mu.Lock()
	old := r.shell
	r.shell = p
	r.mu.Unlock()

	if old != nil {
		if err := old.Kill(); err != nil {
			r.logger.Warn("kill replaced shell process", "error", err)
		}
	}
}

func (r *Registry) RegisterProcess(p runtime.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = append(r.procs, p)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.procs)
	if r.shell != nil {
		n++
	}
	return n
}

// KillAll terminates the shell first (it may be what spawned the
// others), then each tracked process in registration order. Each kill
// is best-effort; the registry is cleared unconditionally afterward.
// Killed processes are not guaranteed to release sandbox resources
// instantly; callers needing that await the subsequent teardown step.
func (r *Registry) KillAll(onLog LogFunc) {
	r.mu.Lock()
	shell := r.shell
	procs := r.procs
	r.shell = nil
	r.procs = nil
	r.mu.Unlock()

	if shell != nil {
		if err := shell.Kill(); err != nil {
			r.logger.Warn("kill shell process", "error", err)
			if onLog != nil {
				onLog("warning: failed to kill shell process: " + err.Error())
			}
		}
	}
	for i, p := range procs {
		if err := p.Kill(); err != nil {
			r.logger.Warn("kill tracked process", "index", i, "error", err)
			if onLog != nil {
				onLog("warning: failed to kill tracked process: " + err.Error())
			}
		}
	}
}

// Clear drops all tracked processes without killing them. Used by the
// forced-recovery path, which resets bookkeeping unconditionally.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shell = nil
	r.procs = nil
}
