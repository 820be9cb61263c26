// Package localdrv implements the runtime contract with plain host
// processes rooted in a scoped workspace directory. It exists for
// development and tests on machines without Docker; isolation is by
// path scoping only, not by namespaces.
package localdrv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"

	"github.com/m-voss/devcell/internal/config"
	"github.com/m-voss/devcell/internal/runtime"
)

// The backing technology allows one live instance per process; the
// local driver enforces the same rule so behavior matches the docker
// driver.
var (
	liveMu sync.Mutex
	live   *Handle
)

type Driver struct {
	cfg    config.LocalConfig
	run    config.RunConfig
	logger *slog.Logger
}

func New(cfg config.LocalConfig, run config.RunConfig, logger *slog.Logger) *Driver {
	return &Driver{cfg: cfg, run: run, logger: logger}
}

func (d *Driver) Boot(ctx context.Context) (runtime.Handle, error) {
	liveMu.Lock()
	defer liveMu.Unlock()

	if live != nil && live.usable() {
		return nil, fmt.Errorf("boot local runtime: %w", runtime.ErrSingleInstance)
	}

	id := uuid.NewString()[:8]
	root := filepath.Join(d.cfg.RootDir, id)
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	h := &Handle{
		id:     id,
		root:   root,
		host:   d.run.Host,
		port:   d.run.DefaultPort,
		logger: d.logger.With("instance_id", id),
	}
	live = h
	d.logger.Info("local runtime booted", "instance_id", id, "root", root)
	return h, nil
}

// Ping verifies the workspace root is writable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.RootDir, 0o755); err != nil {
		return fmt.Errorf("workspace root %s not writable: %w", d.cfg.RootDir, err)
	}
	return nil
}

func (d *Driver) Close() error {
	liveMu.Lock()
	h := live
	liveMu.Unlock()
	if h != nil {
		return h.Teardown(context.Background())
	}
	return nil
}

// Handle is one live local runtime instance. Every filesystem path is
// resolved inside the instance root; escapes via .. or absolute paths
// are clamped, never honored.
type Handle struct {
	id     string
	root   string
	host   string
	port   int
	logger *slog.Logger

	mu       sync.Mutex
	released bool
	procs    []*process

	readyMu  sync.Mutex
	readyFns map[int]func(port int, url string)
	readySeq int
	pollOnce sync.Once
	pollStop chan struct{}
}

func (h *Handle) usable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released
}

func (h *Handle) guard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("local runtime %s: %w", h.id, runtime.ErrHandleReleased)
	}
	return nil
}

func (h *Handle) resolve(path string) (string, error) {
	return securejoin.SecureJoin(h.root, path)
}

func (h *Handle) ReadDir(ctx context.Context, path string) ([]runtime.DirEntry, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	p, err := h.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]runtime.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = runtime.DirEntry{Name: e.Name(), IsDir: e.IsDir()}
	}
	return out, nil
}

func (h *Handle) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	p, err := h.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (h *Handle) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := h.guard(); err != nil {
		return err
	}
	p, err := h.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (h *Handle) MkdirAll(ctx context.Context, path string) error {
	if err := h.guard(); err != nil {
		return err
	}
	p, err := h.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

func (h *Handle) Remove(ctx context.Context, path string) error {
	if err := h.guard(); err != nil {
		return err
	}
	p, err := h.resolve(path)
	if err != nil {
		return err
	}
	if p == h.root {
		return fmt.Errorf("refusing to remove instance root")
	}
	return os.RemoveAll(p)
}
