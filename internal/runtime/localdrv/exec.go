package localdrv

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/creack/pty"

	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// Mount writes the project tree into the instance root. Existing files
// are overwritten; files not in the tree are untouched (the caller
// wipes first when it wants a clean slate).
func (h *Handle) Mount(ctx context.Context, tree protocol.FileTree) error {
	if err := h.guard(); err != nil {
		return err
	}
	return h.mountTree("", tree)
}

func (h *Handle) mountTree(prefix string, tree protocol.FileTree) error {
	for name, node := range tree {
		rel := filepath.Join(prefix, name)
		p, err := h.resolve(rel)
		if err != nil {
			return err
		}
		if node.Children != nil {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return fmt.Errorf("mount %s: %w", rel, err)
			}
			if err := h.mountTree(rel, node.Children); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mount %s: %w", rel, err)
		}
		if err := os.WriteFile(p, []byte(node.Contents), 0o644); err != nil {
			return fmt.Errorf("mount %s: %w", rel, err)
		}
	}
	return nil
}

func (h *Handle) Spawn(ctx context.Context, cmdName string, args []string, opts runtime.SpawnOpts) (runtime.Process, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}

	cwd := h.root
	if opts.Cwd != "" {
		p, err := h.resolve(opts.Cwd)
		if err != nil {
			return nil, err
		}
		cwd = p
	}

	cmd := exec.Command(cmdName, args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), opts.Env...)

	p := &process{
		out:  make(chan string, 64),
		exit: make(chan int, 1),
	}

	if opts.TTY {
		cmd.Env = append(cmd.Env,
			"TERM=xterm-256color",
			"PS1=$ ",
			"HISTFILE=",
		)
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start %s on pty: %w", cmdName, err)
		}
		pty.Setsize(ptmx, &pty.Winsize{Rows: 40, Cols: 120})
		p.cmd = cmd
		p.ptmx = ptmx
		go p.pump(ptmx)
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		cmd.Stderr = cmd.Stdout
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", cmdName, err)
		}
		p.cmd = cmd
		go p.pump(stdout)
	}

	h.mu.Lock()
	h.procs = append(h.procs, p)
	h.mu.Unlock()

	h.logger.Debug("spawned process", "cmd", cmdName, "pid", cmd.Process.Pid, "tty", opts.TTY)
	return p, nil
}

// OnServerReady starts (once) a poller that dials the configured dev
// port until something accepts, then notifies every registered
// listener.
func (h *Handle) OnServerReady(fn func(port int, url string)) func() {
	h.readyMu.Lock()
	if h.readyFns == nil {
		h.readyFns = make(map[int]func(int, string))
		h.pollStop = make(chan struct{})
	}
	h.readySeq++
	id := h.readySeq
	h.readyFns[id] = fn
	h.readyMu.Unlock()

	h.pollOnce.Do(func() { go h.pollPort() })

	return func() {
		h.readyMu.Lock()
		delete(h.readyFns, id)
		h.readyMu.Unlock()
	}
}

func (h *Handle) pollPort() {
	addr := net.JoinHostPort(h.host, fmt.Sprintf("%d", h.port))
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-h.pollStop:
			return
		case <-ticker.C:
			conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
			if err != nil {
				continue
			}
			conn.Close()
			url := fmt.Sprintf("http://%s", addr)

			h.readyMu.Lock()
			fns := make([]func(int, string), 0, len(h.readyFns))
			for _, fn := range h.readyFns {
				fns = append(fns, fn)
			}
			h.readyMu.Unlock()

			for _, fn := range fns {
				fn(h.port, url)
			}
			return
		}
	}
}

// Teardown kills every spawned process, removes the workspace, and
// marks the handle released. Idempotent.
func (h *Handle) Teardown(ctx context.Context) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	procs := h.procs
	h.procs = nil
	h.mu.Unlock()

	h.readyMu.Lock()
	if h.pollStop != nil {
		close(h.pollStop)
	}
	h.readyMu.Unlock()

	for _, p := range procs {
		p.Kill()
	}

	liveMu.Lock()
	if live == h {
		live = nil
	}
	liveMu.Unlock()

	if err := os.RemoveAll(h.root); err != nil {
		return fmt.Errorf("remove workspace root: %w", err)
	}
	h.logger.Info("local runtime torn down")
	return nil
}

type process struct {
	cmd  *exec.Cmd
	ptmx *os.File
	out  chan string
	exit chan int
}

func (p *process) Output() <-chan string { return p.out }
func (p *process) Exit() <-chan int      { return p.exit }

func (p *process) Kill() error {
	if p.ptmx != nil {
		p.ptmx.Close()
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// pump forwards process output to the channel until EOF, then reaps
// the process and delivers its exit code.
func (p *process) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.out <- string(buf[:n])
		}
		if err != nil {
			break
		}
	}
	close(p.out)

	code := 0
	if err := p.cmd.Wait(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	p.exit <- code
}
