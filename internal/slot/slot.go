// Package slot provides the process-wide storage location through which
// independently constructed lifecycle controllers discover an already
// live runtime handle. It is a deliberate shared-resource broker: the
// slot is the source of truth for "is there a live handle", and local
// controller state is only a cache of it.
package slot

import (
	"sync"

	"github.com/m-voss/devcell/internal/runtime"
)

// Slot holds at most one runtime handle.
type Slot struct {
	mu     sync.Mutex
	handle runtime.Handle
}

func New() *Slot {
	return &Slot{}
}

// Get returns the stored handle, or nil.
func (s *Slot) Get() runtime.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Set stores h, replacing any previous handle. The caller is responsible
// for having torn the previous one down.
func (s *Slot) Set(h runtime.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// Clear drops the stored handle without touching it.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = nil
}

// Held reports whether a handle is currently stored.
func (s *Slot) Held() bool {
	return s.Get() != nil
}

var global = New()

// Global returns the process-wide slot shared by all controllers that
// do not inject their own (tests do).
func Global() *Slot {
	return global
}
