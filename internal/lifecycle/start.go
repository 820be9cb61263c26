package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/m-voss/devcell/internal/output"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// StartOpts controls the run protocol for one project start.
type StartOpts struct {
	// Static selects the static-site serve command and its shorter
	// readiness timeout.
	Static bool
}

type serverAddr struct {
	port int
	url  string
}

// readyFuture is a single-assignment result shared by the racing
// server-ready detection branches: whichever resolves first wins, the
// second is ignored.
type readyFuture struct {
	mu       sync.Mutex
	resolved bool
	ch       chan serverAddr
}

func newReadyFuture() *readyFuture {
	return &readyFuture{ch: make(chan serverAddr, 1)}
}

func (f *readyFuture) resolve(port int, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.resolved = true
	f.ch <- serverAddr{port: port, url: url}
	return true
}

// StartProject runs the install and start commands for the currently
// mounted project and waits for the dev/static server to become
// reachable. Install is awaited to completion; the start command's
// output is streamed continuously while readiness is detected by racing
// the runtime's native server-ready notification against a
// manual-detection fallback, bounded by a shared timeout.
func (c *Controller) StartProject(ctx context.Context, onLog LogFunc, opts StartOpts) (*protocol.StartResponse, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	sess := c.currentSession()
	if sess == nil || sess.Handle == nil {
		return nil, ErrNoSession
	}
	if sess.Status != protocol.StatusReady {
		return nil, fmt.Errorf("%w: session status is %s", ErrNotReady, sess.Status)
	}
	h := sess.Handle
	projectID := sess.ProjectID

	if err := c.runInstall(ctx, h, onLog); err != nil {
		c.failProject(projectID, onLog, err)
		return nil, err
	}

	addr, err := c.runStart(ctx, h, onLog, opts)
	if err != nil {
		c.failProject(projectID, onLog, err)
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.Status = protocol.StatusRunning
		c.session.Port = addr.port
		c.session.PreviewURL = addr.url
	}
	c.mu.Unlock()
	c.notifyStore(projectID, protocol.ProjectRunning, addr.url, addr.port)

	c.logf(onLog, "project %s running at %s", projectID, addr.url)
	return &protocol.StartResponse{
		ProjectID:  projectID,
		Port:       addr.port,
		PreviewURL: addr.url,
	}, nil
}

// runInstall spawns the dependency-install command and awaits its exit.
// A non-zero exit fails this run attempt, not the controller.
func (c *Controller) runInstall(ctx context.Context, h runtime.Handle, onLog LogFunc) error {
	c.logf(onLog, "installing dependencies: %s", c.cfg.Run.InstallCmd)
	p, err := c.spawnCommand(ctx, h, c.cfg.Run.InstallCmd)
	if err != nil {
		return fmt.Errorf("spawn install command: %w", err)
	}
	c.registry.RegisterProcess(p)

	done := make(chan struct{})
	go func() {
		c.streamProcess(p, onLog)
		close(done)
	}()

	code := <-p.Exit()
	<-done
	if code != 0 {
		return fmt.Errorf("%w: install exited with code %d", ErrCommandFailed, code)
	}
	c.logf(onLog, "dependencies installed")
	return nil
}

// runStart spawns the serve command and resolves the server address.
// Unlike install, its output is streamed for the lifetime of the
// process rather than awaited to completion.
func (c *Controller) runStart(ctx context.Context, h runtime.Handle, onLog LogFunc, opts StartOpts) (serverAddr, error) {
	cmdline := c.cfg.Run.StartCmd
	timeout := time.Duration(c.cfg.Run.DevServerTimeoutMs) * time.Millisecond
	if opts.Static {
		cmdline = c.cfg.Run.StaticCmd
		timeout = time.Duration(c.cfg.Run.StaticTimeoutMs) * time.Millisecond
	}

	c.logf(onLog, "starting server: %s", cmdline)
	p, err := c.spawnCommand(ctx, h, cmdline)
	if err != nil {
		return serverAddr{}, fmt.Errorf("spawn start command: %w", err)
	}
	c.registry.RegisterProcess(p)
	go c.streamProcess(p, onLog)

	future := newReadyFuture()

	// Branch (a): the runtime's native server-ready notification.
	cancelReady := h.OnServerReady(func(port int, url string) {
		future.resolve(port, url)
	})
	defer cancelReady()

	// Branch (b): manual detection. After a fixed delay with no native
	// signal, assume the conventional default port.
	fallbackPort := c.cfg.Run.DefaultPort
	fallbackURL := fmt.Sprintf("http://%s:%d", c.cfg.Run.Host, fallbackPort)
	fallback := time.AfterFunc(time.Duration(c.cfg.Run.ManualDetectDelayMs)*time.Millisecond, func() {
		if future.resolve(fallbackPort, fallbackURL) {
			c.logf(onLog, "no server-ready signal yet, assuming %s", fallbackURL)
		}
	})
	defer fallback.Stop()

	select {
	case addr := <-future.ch:
		return addr, nil
	case <-time.After(timeout):
		// The process may still be running; the caller decides whether
		// to stop it.
		return serverAddr{}, fmt.Errorf("%w after %s", ErrStartupTimeout, timeout)
	case <-ctx.Done():
		return serverAddr{}, ctx.Err()
	}
}

func (c *Controller) spawnCommand(ctx context.Context, h runtime.Handle, cmdline string) (runtime.Process, error) {
	argv, err := shellquote.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", cmdline, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return h.Spawn(ctx, argv[0], argv[1:], runtime.SpawnOpts{})
}

// streamProcess forwards cleaned output lines to the caller's sink
// until the process output closes.
func (c *Controller) streamProcess(p runtime.Process, onLog LogFunc) {
	for chunk := range p.Output() {
		for _, line := range output.CleanLines(chunk) {
			if onLog != nil {
				onLog(line)
			}
		}
	}
}

func (c *Controller) failProject(projectID string, onLog LogFunc, cause error) {
	c.mu.Lock()
	if c.session != nil {
		c.session.Status = protocol.StatusError
	}
	c.mu.Unlock()
	c.notifyStore(projectID, protocol.ProjectError, "", 0)
	c.logf(onLog, "project %s failed: %v", projectID, cause)
}
