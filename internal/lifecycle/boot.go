package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// GetOrBoot returns the live runtime handle, booting one only if no
// live instance can be discovered. Discovery order: the process-wide
// slot first, then local state, each verified by a liveness probe
// before being trusted. Concurrent callers are coalesced onto a single
// in-flight acquisition and all receive its result.
func (c *Controller) GetOrBoot(ctx context.Context, onLog LogFunc) (runtime.Handle, error) {
	v, err, _ := c.bootGroup.Do("boot", func() (any, error) {
		return c.getOrBoot(ctx, onLog)
	})
	if err != nil {
		return nil, err
	}
	return v.(runtime.Handle), nil
}

func (c *Controller) getOrBoot(ctx context.Context, onLog LogFunc) (runtime.Handle, error) {
	// 1. Process-wide slot: another controller (or this one before a
	// remount) may already hold a live instance.
	if h := c.slot.Get(); h != nil {
		res, err := c.probeHandle(ctx, h)
		switch res {
		case probeAlive:
			c.adoptHandle(h)
			c.logf(onLog, "reusing existing runtime instance")
			return h, nil
		case probeDead:
			c.logf(onLog, "stored runtime handle is dead, discarding: %v", err)
			c.slot.Clear()
			c.resetLocalState()
		case probeUnknown:
			return nil, fmt.Errorf("probing stored runtime handle: %w", err)
		}
	}

	// 2. Controller-local state, same probe/adopt/clear logic.
	if sess := c.currentSession(); sess != nil && sess.Handle != nil {
		res, err := c.probeHandle(ctx, sess.Handle)
		switch res {
		case probeAlive:
			c.slot.Set(sess.Handle)
			c.mu.Lock()
			c.reuseCount++
			c.mu.Unlock()
			c.logf(onLog, "reusing local runtime instance")
			return sess.Handle, nil
		case probeDead:
			c.logf(onLog, "local runtime handle is dead, discarding: %v", err)
			c.resetLocalState()
		case probeUnknown:
			return nil, fmt.Errorf("probing local runtime handle: %w", err)
		}
	}

	// 3. No live handle anywhere: boot fresh under the shared project id.
	return c.bootRuntime(ctx, protocol.SharedProjectID, onLog, false)
}

// adoptHandle takes ownership of a discovered live handle, preserving
// the existing session metadata when it already refers to the same
// handle.
func (c *Controller) adoptHandle(h runtime.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reuseCount++
	if c.session != nil && c.session.Handle == h {
		return
	}
	c.session = &Session{
		ProjectID: protocol.SharedProjectID,
		Handle:    h,
		Status:    protocol.StatusReady,
		CreatedAt: time.Now().UTC(),
	}
}

// BootRuntime acquires a runtime bound to projectID. A live handle for
// the same project is reused unless forceNew is set; a live handle for
// a different project is fully torn down first, because the technology
// forbids two simultaneous instances.
func (c *Controller) BootRuntime(ctx context.Context, projectID string, onLog LogFunc, forceNew bool) (runtime.Handle, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.bootRuntime(ctx, projectID, onLog, forceNew)
}

func (c *Controller) bootRuntime(ctx context.Context, projectID string, onLog LogFunc, forceNew bool) (runtime.Handle, error) {
	if sess := c.currentSession(); sess != nil && sess.Handle != nil {
		if !forceNew && sess.ProjectID == projectID {
			c.mu.Lock()
			c.reuseCount++
			c.mu.Unlock()
			return sess.Handle, nil
		}
		// Different project or forced: the old instance must go before a
		// new one can exist.
		c.destroyCurrent(ctx, onLog)
	}

	c.mu.Lock()
	c.bootInFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.bootInFlight = false
		c.mu.Unlock()
	}()

	h, err := c.bootWithRetries(ctx, onLog)
	if err != nil {
		// No partial state may survive a failed boot: the next call must
		// be a clean fresh attempt.
		c.resetLocalState()
		c.slot.Clear()
		c.logf(onLog, "runtime boot failed: %v", err)
		return nil, err
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.session = &Session{
		ProjectID: projectID,
		Handle:    h,
		Status:    protocol.StatusReady,
		CreatedAt: now,
	}
	c.bootCount++
	c.mu.Unlock()
	c.slot.Set(h)

	c.logf(onLog, "runtime booted for project %s", projectID)
	return h, nil
}

// bootWithRetries attempts the boot up to the configured maximum, with
// linearly increasing backoff between attempts and a settle delay after
// success. Exhaustion is terminal: the technology has no in-process
// recovery once boot fails irrecoverably, so the error says to restart.
func (c *Controller) bootWithRetries(ctx context.Context, onLog LogFunc) (runtime.Handle, error) {
	maxAttempts := c.cfg.Boot.MaxAttempts
	backoffBase := time.Duration(c.cfg.Boot.BackoffBaseMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		h, err := c.driver.Boot(ctx)
		if err == nil {
			c.settle()
			return h, nil
		}
		lastErr = err
		c.logf(onLog, "boot attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			c.sleep(backoffBase * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("runtime boot failed after %d attempts: %w (a full application restart is required)", maxAttempts, lastErr)
}
