// Package protocol defines the JSON types exchanged between the devcell
// daemon and its control clients, plus the constants both sides share.
package protocol

import "time"

// RuntimeStatus is the lifecycle state of the managed runtime session.
type RuntimeStatus string

const (
	StatusBooting RuntimeStatus = "booting"
	StatusReady   RuntimeStatus = "ready"
	StatusRunning RuntimeStatus = "running"
	StatusError   RuntimeStatus = "error"
)

// ProjectState is the persisted per-project run state.
type ProjectState string

const (
	ProjectIdle    ProjectState = "idle"
	ProjectRunning ProjectState = "running"
	ProjectError   ProjectState = "error"
)

// SharedProjectID is the placeholder project a runtime is booted under
// before any real project has been mounted.
const SharedProjectID = "shared"

// DefaultDevPort is the port the manual server-detection fallback
// assumes when a dev server never announces itself.
const DefaultDevPort = 5173

// FileNode is one entry in a mountable project tree. A node is either a
// file (Contents set) or a directory (Children set).
type FileNode struct {
	Contents string              `json:"contents,omitempty"`
	Children map[string]FileNode `json:"children,omitempty"`
}

// FileTree maps top-level names to nodes.
type FileTree map[string]FileNode

// SwitchRequest mounts a project onto the runtime.
type SwitchRequest struct {
	Files FileTree `json:"files"`
}

// StartRequest starts a mounted project.
type StartRequest struct {
	// Static selects the shorter static-site readiness timeout.
	Static bool `json:"static,omitempty"`
}

// StartResponse reports where the started server is reachable.
type StartResponse struct {
	ProjectID  string `json:"project_id"`
	Port       int    `json:"port"`
	PreviewURL string `json:"preview_url"`
}

// StatusResponse describes the current runtime session, if any.
type StatusResponse struct {
	Exists     bool          `json:"exists"`
	ProjectID  string        `json:"project_id,omitempty"`
	Status     RuntimeStatus `json:"status,omitempty"`
	Port       int           `json:"port,omitempty"`
	PreviewURL string        `json:"preview_url,omitempty"`
	CreatedAt  time.Time     `json:"created_at,omitzero"`
}

// StatsResponse reports controller counters for diagnostics.
type StatsResponse struct {
	BootCount      int  `json:"boot_count"`
	ReuseCount     int  `json:"reuse_count"`
	TrackedProcs   int  `json:"tracked_procs"`
	BootInFlight   bool `json:"boot_in_flight"`
	GlobalSlotHeld bool `json:"global_slot_held"`
}

// ProjectStatus is the persisted record for one project.
type ProjectStatus struct {
	ProjectID string       `json:"project_id"`
	State     ProjectState `json:"state"`
	URL       string       `json:"url,omitempty"`
	Port      int          `json:"port,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ForceCleanupResponse reports the outcome of the recovery path.
type ForceCleanupResponse struct {
	ZombieDetected bool   `json:"zombie_detected"`
	Message        string `json:"message"`
}
