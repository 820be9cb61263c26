package lifecycle

import (
	"context"

	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// StopProject kills tracked processes only. The handle stays alive and
// mounted; session status resets to ready with port/url cleared, and
// the status store is notified of an idle state.
func (c *Controller) StopProject(ctx context.Context, onLog LogFunc) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.currentSession()
	if sess == nil {
		return ErrNoSession
	}

	c.logf(onLog, "stopping project %s", sess.ProjectID)
	c.registry.KillAll(onLog)

	c.mu.Lock()
	projectID := ""
	if c.session != nil {
		c.session.Status = protocol.StatusReady
		c.session.Port = 0
		c.session.PreviewURL = ""
		projectID = c.session.ProjectID
	}
	c.mu.Unlock()

	c.notifyStore(projectID, protocol.ProjectIdle, "", 0)
	return nil
}

// DestroyRuntime runs the full cleanup protocol on the current session.
// Safe to call when no session exists.
func (c *Controller) DestroyRuntime(ctx context.Context, onLog LogFunc) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.currentSession()
	if sess == nil {
		return nil
	}
	projectID := sess.ProjectID

	c.destroyCurrent(ctx, onLog)
	c.notifyStore(projectID, protocol.ProjectIdle, "", 0)
	return nil
}

// Cleanup is the app-shutdown path: destroy plus an explicit clear of
// the process-wide slot.
func (c *Controller) Cleanup(ctx context.Context, onLog LogFunc) error {
	err := c.DestroyRuntime(ctx, onLog)
	c.slot.Clear()
	return err
}

// destroyCurrent runs the cleanup protocol in strict order, each step
// best-effort but logged:
//  1. kill all tracked processes
//  2. tear down the handle (the reference is discarded either way)
//  3. clear session metadata
//  4. invoke the destroy callback, if registered
//  5. settle delay (teardown is asynchronous at the runtime level;
//     resources are not guaranteed released when the call returns)
func (c *Controller) destroyCurrent(ctx context.Context, onLog LogFunc) {
	c.registry.KillAll(onLog)

	c.mu.Lock()
	sess := c.session
	cb := c.destroyCallback
	c.mu.Unlock()

	if sess != nil && sess.Handle != nil {
		if err := sess.Handle.Teardown(ctx); err != nil {
			c.logf(onLog, "warning: runtime teardown failed: %v", err)
		}
		if c.slot.Get() == sess.Handle {
			c.slot.Clear()
		}
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	if cb != nil {
		cb()
	}

	c.settle()
	c.logf(onLog, "runtime destroyed")
}

// ForceCleanup is the recovery path for when normal teardown is
// suspected to have failed or state is inconsistent. Whether the global
// resource is actually free is verified by a real side-effecting probe,
// never assumed from local flags. The returned flag reports a confirmed
// zombie, which is unrecoverable in-process.
func (c *Controller) ForceCleanup(ctx context.Context, onLog LogFunc) (zombie bool, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.logf(onLog, "force cleanup: resetting controller state")

	// 1. Reset all local bookkeeping unconditionally, but capture the
	// handle first so it can still be torn down.
	c.mu.Lock()
	var localHandle runtime.Handle
	if c.session != nil {
		localHandle = c.session.Handle
	}
	c.session = nil
	c.registry.Clear()
	c.mu.Unlock()

	// 2. Tear down whatever the slot holds; clear the slot regardless of
	// the outcome. Never keep a reference to a handle we stopped tracking.
	slotHandle := c.slot.Get()
	if slotHandle != nil {
		if terr := slotHandle.Teardown(ctx); terr != nil {
			c.logf(onLog, "warning: teardown of stored handle failed: %v", terr)
		}
		c.slot.Clear()
	}

	// 3. The local handle may differ from the slot's (inconsistent state
	// is exactly what this path exists for).
	if localHandle != nil && localHandle != slotHandle {
		if terr := localHandle.Teardown(ctx); terr != nil {
			c.logf(onLog, "warning: teardown of local handle failed: %v", terr)
		}
	}

	// 4. Let asynchronous resource release finish.
	c.settle()

	// 5. Zombie probe: boot a throwaway instance purely as a diagnostic.
	c.logf(onLog, "force cleanup: probing for zombie instance")
	probe, berr := c.driver.Boot(ctx)
	if berr == nil {
		// Boot succeeded, so no zombie exists. Tear the probe down again.
		if terr := probe.Teardown(ctx); terr != nil {
			c.logf(onLog, "warning: teardown of probe instance failed: %v", terr)
		}
		c.settle()
		c.logf(onLog, "force cleanup complete, no zombie instance")
		return false, nil
	}
	if runtime.IsSingleInstanceConflict(berr) {
		c.logf(onLog, "zombie runtime instance confirmed: it cannot be recovered in-process, a full application restart is required")
		return true, nil
	}
	return false, berr
}

// ReapDeadHandle probes the current handle and, when it carries the
// released signature, drops every reference to it so the next
// acquisition boots fresh. Unknown probe errors are reported, not acted
// on. Returns whether a dead handle was reaped.
func (c *Controller) ReapDeadHandle(ctx context.Context) (bool, error) {
	sess := c.currentSession()
	if sess == nil || sess.Handle == nil {
		return false, nil
	}

	res, err := c.probeHandle(ctx, sess.Handle)
	switch res {
	case probeAlive:
		return false, nil
	case probeDead:
		c.logger.Warn("runtime handle died outside controller operations, discarding",
			"project_id", sess.ProjectID, "error", err)
		if c.slot.Get() == sess.Handle {
			c.slot.Clear()
		}
		c.resetLocalState()
		c.notifyStore(sess.ProjectID, protocol.ProjectError, "", 0)
		return true, nil
	default:
		return false, err
	}
}

func (c *Controller) notifyStore(projectID string, state protocol.ProjectState, url string, port int) {
	if c.store == nil || projectID == "" {
		return
	}
	if err := c.store.SetState(projectID, state, url, port); err != nil {
		c.logger.Warn("update status store", "project_id", projectID, "error", err)
	}
}
