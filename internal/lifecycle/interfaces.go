package lifecycle

import (
	"github.com/m-voss/devcell/protocol"
)

// StatusStore receives project state transitions. The controller only
// writes; it never reads authoritative state back.
type StatusStore interface {
	SetState(projectID string, state protocol.ProjectState, url string, port int) error
}

// LogFunc is the caller's log sink. Every operation writes timestamped,
// human-readable lines through it in addition to structured logging, so
// a UI terminal sees the same failures the caller's error handling does.
type LogFunc func(line string)
