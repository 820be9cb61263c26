package runtime

import (
	"errors"
	"strings"
)

// Sentinel errors drivers return (or wrap) at the runtime boundary.
var (
	// ErrSingleInstance means a boot was refused because a live instance
	// already occupies the process-wide slot the technology enforces.
	ErrSingleInstance = errors.New("only a single runtime instance is allowed")

	// ErrHandleReleased means the handle backing an operation is dead:
	// the instance was torn down or lost without this reference knowing.
	ErrHandleReleased = errors.New("runtime handle has been released")
)

// IsSingleInstanceConflict reports whether err carries the "second boot
// refused" signature, either as the sentinel or as a message from the
// underlying technology.
func IsSingleInstanceConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSingleInstance) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "single instance")
}

// IsHandleReleased reports whether err carries the dead-handle signature.
// Anything else must be propagated, not treated as "dead".
func IsHandleReleased(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrHandleReleased) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "has been released") || strings.Contains(s, "not usable")
}
