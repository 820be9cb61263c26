package lifecycle

import (
	"context"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/m-voss/devcell/internal/runtime"
)

// OpenShell spawns the configured interactive shell inside the runtime
// on a TTY and registers it as the session's distinguished shell, so
// cleanup terminates it before any other tracked process. An already
// open shell is killed and replaced; the runtime has one terminal.
func (c *Controller) OpenShell(ctx context.Context) (runtime.Process, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.currentSession()
	if sess == nil || sess.Handle == nil {
		return nil, ErrNoSession
	}

	argv, err := shellquote.Split(c.cfg.Run.ShellCmd)
	if err != nil {
		return nil, fmt.Errorf("parse shell command %q: %w", c.cfg.Run.ShellCmd, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty shell command")
	}

	p, err := sess.Handle.Spawn(ctx, argv[0], argv[1:], runtime.SpawnOpts{TTY: true})
	if err != nil {
		return nil, fmt.Errorf("spawn shell: %w", err)
	}
	c.registry.RegisterShell(p)

	c.logger.Info("interactive shell opened", "project_id", sess.ProjectID, "cmd", c.cfg.Run.ShellCmd)
	return p, nil
}
