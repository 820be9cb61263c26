// Package lifecycle implements the singleton runtime lifecycle
// controller: it owns at most one live runtime handle at a time,
// provides idempotent acquisition, project switching, the run/start
// protocol, and forced recovery from zombie instances.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/m-voss/devcell/internal/config"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/internal/slot"
	"github.com/m-voss/devcell/protocol"
)

// Sentinel errors
var (
	ErrNoSession      = errors.New("no runtime session")
	ErrNotReady       = errors.New("project not ready")
	ErrCommandFailed  = errors.New("command failed")
	ErrStartupTimeout = errors.New("startup timeout")
	ErrZombieRuntime  = errors.New("zombie runtime instance detected")
)

// Session is the controller's record of the one live runtime instance.
type Session struct {
	ProjectID  string
	Handle     runtime.Handle
	Status     protocol.RuntimeStatus
	Port       int
	PreviewURL string
	CreatedAt  time.Time
}

// Controller guarantees the single-global-instance invariant of the
// runtime technology. Local state is a cache; the injected slot is the
// source of truth for "is there a live handle", and liveness is always
// re-verified by a probe before a cached handle is trusted.
type Controller struct {
	cfg    *config.Config
	driver runtime.Driver
	slot   *slot.Slot
	store  StatusStore // optional
	logger *slog.Logger

	// opMu serializes the top-level mutating operations (switch, start,
	// stop, destroy, force-cleanup). Boot acquisition is coalesced
	// separately through bootGroup so callers racing GetOrBoot share one
	// in-flight boot instead of queueing behind unrelated operations.
	opMu sync.Mutex

	mu       sync.Mutex // guards the fields below
	session  *Session
	registry *Registry

	bootGroup    singleflight.Group
	bootInFlight bool
	bootCount    int
	reuseCount   int

	destroyCallback func()

	// sleep is swapped out by tests to record backoff/settle waits.
	sleep func(time.Duration)
}

func New(cfg *config.Config, driver runtime.Driver, sl *slot.Slot, store StatusStore, logger *slog.Logger) *Controller {
	if sl == nil {
		sl = slot.Global()
	}
	return &Controller{
		cfg:      cfg,
		driver:   driver,
		slot:     sl,
		store:    store,
		logger:   logger,
		registry: NewRegistry(logger),
		sleep:    time.Sleep,
	}
}

// Initialize verifies the runtime technology is available at all. It
// fails fast so the daemon can refuse to start instead of failing on
// the first boot.
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.driver.Ping(ctx); err != nil {
		return fmt.Errorf("runtime environment unavailable: %w", err)
	}
	return nil
}

// SetDestroyCallback registers fn to run whenever the runtime is torn
// down, so dependent state can react.
func (c *Controller) SetDestroyCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyCallback = fn
}

// Status reports the current session, if any.
func (c *Controller) Status() protocol.StatusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return protocol.StatusResponse{}
	}
	return protocol.StatusResponse{
		Exists:     true,
		ProjectID:  c.session.ProjectID,
		Status:     c.session.Status,
		Port:       c.session.Port,
		PreviewURL: c.session.PreviewURL,
		CreatedAt:  c.session.CreatedAt,
	}
}

// Stats reports controller counters for diagnostics.
func (c *Controller) Stats() protocol.StatsResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.StatsResponse{
		BootCount:      c.bootCount,
		ReuseCount:     c.reuseCount,
		TrackedProcs:   c.registry.Count(),
		BootInFlight:   c.bootInFlight,
		GlobalSlotHeld: c.slot.Held(),
	}
}

// Handle returns the current live handle, or nil. Intended for tests
// and diagnostics; all mutation goes through controller operations.
func (c *Controller) Handle() runtime.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.Handle
}

// RegisterProcess tracks a spawned process for bulk termination.
func (c *Controller) RegisterProcess(p runtime.Process) {
	c.registry.RegisterProcess(p)
}

// RegisterShell tracks the distinguished interactive shell process.
func (c *Controller) RegisterShell(p runtime.Process) {
	c.registry.RegisterShell(p)
}

type probeResult int

const (
	probeAlive probeResult = iota
	probeDead
	probeUnknown
)

// probeHandle issues a cheap side-effecting liveness check. Liveness is
// never inferred from the mere presence of a reference: alive means the
// read succeeded, dead means the known released-handle signature, and
// anything else is unknown and must be propagated, not masked.
func (c *Controller) probeHandle(ctx context.Context, h runtime.Handle) (probeResult, error) {
	_, err := h.ReadDir(ctx, "/")
	if err == nil {
		return probeAlive, nil
	}
	if runtime.IsHandleReleased(err) {
		return probeDead, err
	}
	return probeUnknown, err
}

// resetLocalState drops all controller-local bookkeeping. The slot is
// left alone; callers decide whether to clear it.
func (c *Controller) resetLocalState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.registry.Clear()
}

func (c *Controller) currentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// logf writes a timestamped line to the caller's sink and mirrors it to
// the structured logger.
func (c *Controller) logf(onLog LogFunc, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Info(msg)
	if onLog != nil {
		onLog(time.Now().Format("15:04:05") + " " + msg)
	}
}

func (c *Controller) settle() {
	c.sleep(time.Duration(c.cfg.Boot.SettleMs) * time.Millisecond)
}
