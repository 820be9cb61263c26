package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/m-voss/devcell/protocol"
)

// SwitchProject binds the runtime to a new project: acquire (or reuse)
// the instance, kill everything the previous project left running, wipe
// the filesystem root except the preserved system paths, and mount the
// new tree. Session metadata is updated only after the mount succeeds.
func (c *Controller) SwitchProject(ctx context.Context, projectID string, files protocol.FileTree, onLog LogFunc) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	h, err := c.GetOrBoot(ctx, onLog)
	if err != nil {
		return fmt.Errorf("acquire runtime: %w", err)
	}

	// The previous project's dev server or install must not survive the
	// switch.
	c.registry.KillAll(onLog)

	if err := c.wipeFilesystem(ctx, onLog); err != nil {
		return err
	}

	c.logf(onLog, "mounting project %s", projectID)
	if err := h.Mount(ctx, files); err != nil {
		return fmt.Errorf("mount project files: %w", err)
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.ProjectID = projectID
		c.session.Status = protocol.StatusReady
		c.session.Port = 0
		c.session.PreviewURL = ""
	} else {
		c.session = &Session{
			ProjectID: projectID,
			Handle:    h,
			Status:    protocol.StatusReady,
			CreatedAt: time.Now().UTC(),
		}
	}
	c.mu.Unlock()

	c.notifyStore(projectID, protocol.ProjectIdle, "", 0)
	c.logf(onLog, "switched to project %s", projectID)
	return nil
}

// wipeFilesystem removes every entry of the filesystem root except the
// fixed allow-list of system paths. Per-entry failures are logged and
// skipped: a single stuck temp file must not block a project switch.
func (c *Controller) wipeFilesystem(ctx context.Context, onLog LogFunc) error {
	sess := c.currentSession()
	if sess == nil || sess.Handle == nil {
		return ErrNoSession
	}

	preserved := make(map[string]bool, len(c.cfg.PreservedPaths))
	for _, p := range c.cfg.PreservedPaths {
		preserved[p] = true
	}

	entries, err := sess.Handle.ReadDir(ctx, "/")
	if err != nil {
		return fmt.Errorf("enumerate filesystem root: %w", err)
	}

	for _, e := range entries {
		if preserved[e.Name] {
			continue
		}
		if err := sess.Handle.Remove(ctx, "/"+e.Name); err != nil {
			c.logf(onLog, "warning: failed to remove /%s: %v", e.Name, err)
		}
	}
	return nil
}
