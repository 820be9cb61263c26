// Package runtime defines the contract the lifecycle controller requires
// from a sandboxed runtime instance: a filesystem, a process spawner, a
// mount primitive, and a server-ready notification. Drivers (docker,
// local) provide concrete implementations.
package runtime

import (
	"context"

	"github.com/m-voss/devcell/protocol"
)

// DirEntry is one entry of a runtime filesystem directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// SpawnOpts controls process creation inside the runtime.
type SpawnOpts struct {
	Cwd string
	Env []string
	// TTY requests an interactive terminal (used for the shell process).
	TTY bool
}

// Process is a spawned process inside the runtime. Output delivers raw
// text chunks and is closed when the process exits; Exit delivers the
// exit code exactly once.
type Process interface {
	Output() <-chan string
	Exit() <-chan int
	Kill() error
}

// Handle is one live runtime instance. All mutation of the sandbox
// (filesystem writes, spawns, teardown) goes through this reference.
type Handle interface {
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	MkdirAll(ctx context.Context, path string) error
	// Remove deletes path recursively; missing paths are not an error.
	Remove(ctx context.Context, path string) error

	Mount(ctx context.Context, tree protocol.FileTree) error
	Spawn(ctx context.Context, cmd string, args []string, opts SpawnOpts) (Process, error)

	// OnServerReady registers fn to be called once a spawned process
	// binds a reachable port. The returned func cancels the registration.
	OnServerReady(fn func(port int, url string)) (cancel func())

	Teardown(ctx context.Context) error
}

// Driver boots runtime instances. Boot fails with a single-instance
// conflict if another live instance exists anywhere in the process.
type Driver interface {
	Boot(ctx context.Context) (Handle, error)
	Ping(ctx context.Context) error
	Close() error
}
