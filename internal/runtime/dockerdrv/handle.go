package dockerdrv

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

// Handle is one live runtime container. Filesystem operations and
// process spawns go through Docker execs rooted at the workspace dir.
type Handle struct {
	driver      *Driver
	instanceID  string
	containerID string

	mu       sync.Mutex
	released bool

	readyMu  sync.Mutex
	readyFns map[int]func(port int, url string)
	readySeq int
	pollOnce sync.Once
	pollStop chan struct{}
}

func newHandle(d *Driver, instanceID, containerID string) *Handle {
	return &Handle{
		driver:      d,
		instanceID:  instanceID,
		containerID: containerID,
		readyFns:    make(map[int]func(int, string)),
		pollStop:    make(chan struct{}),
	}
}

func (h *Handle) guard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("runtime container %s: %w", h.instanceID, runtime.ErrHandleReleased)
	}
	return nil
}

// mapErr converts a gone-container error into the released signature so
// the controller's probe can tell "dead" from "broken".
func (h *Handle) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) || strings.Contains(err.Error(), "is not running") {
		return fmt.Errorf("runtime container %s: %v: %w", h.instanceID, err, runtime.ErrHandleReleased)
	}
	return err
}

func (h *Handle) workspacePath(p string) string {
	return path.Join(workspaceDir, path.Clean("/"+p))
}

// execCapture runs a command to completion and returns its stdout.
func (h *Handle) execCapture(ctx context.Context, cmd []string) ([]byte, error) {
	execResp, err := h.driver.docker.ContainerExecCreate(ctx, h.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workspaceDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, h.mapErr(err)
	}

	attach, err := h.driver.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, h.mapErr(err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("exec read: %w", err)
	}

	inspect, err := h.driver.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, h.mapErr(err)
	}
	if inspect.ExitCode != 0 {
		return nil, fmt.Errorf("%s: exit %d: %s", cmd[0], inspect.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (h *Handle) ReadDir(ctx context.Context, p string) ([]runtime.DirEntry, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	out, err := h.execCapture(ctx, []string{"ls", "-1Ap", h.workspacePath(p)})
	if err != nil {
		return nil, err
	}
	var entries []runtime.DirEntry
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		isDir := strings.HasSuffix(line, "/")
		entries = append(entries, runtime.DirEntry{
			Name:  strings.TrimSuffix(line, "/"),
			IsDir: isDir,
		})
	}
	return entries, nil
}

func (h *Handle) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	return h.execCapture(ctx, []string{"cat", h.workspacePath(p)})
}

func (h *Handle) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := h.guard(); err != nil {
		return err
	}
	tree := protocol.FileTree{}
	insertPath(tree, strings.TrimPrefix(path.Clean("/"+p), "/"), string(data))
	return h.Mount(ctx, tree)
}

func (h *Handle) MkdirAll(ctx context.Context, p string) error {
	if err := h.guard(); err != nil {
		return err
	}
	_, err := h.execCapture(ctx, []string{"mkdir", "-p", h.workspacePath(p)})
	return err
}

func (h *Handle) Remove(ctx context.Context, p string) error {
	if err := h.guard(); err != nil {
		return err
	}
	target := h.workspacePath(p)
	if target == workspaceDir {
		return fmt.Errorf("refusing to remove workspace root")
	}
	_, err := h.execCapture(ctx, []string{"rm", "-rf", target})
	return err
}

// Mount streams the project tree into the workspace as a tar archive,
// one round trip regardless of tree size.
func (h *Handle) Mount(ctx context.Context, tree protocol.FileTree) error {
	if err := h.guard(); err != nil {
		return err
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeTree(tw, "", tree); err != nil {
		return fmt.Errorf("build mount archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return err
	}

	err := h.driver.docker.CopyToContainer(ctx, h.containerID, workspaceDir, &buf, container.CopyToContainerOptions{})
	if err != nil {
		return h.mapErr(fmt.Errorf("copy to container: %w", err))
	}
	return nil
}

func writeTree(tw *tar.Writer, prefix string, tree protocol.FileTree) error {
	for name, node := range tree {
		rel := path.Join(prefix, name)
		if node.Children != nil {
			if err := tw.WriteHeader(&tar.Header{
				Name:     rel + "/",
				Mode:     0o755,
				Typeflag: tar.TypeDir,
			}); err != nil {
				return err
			}
			if err := writeTree(tw, rel, node.Children); err != nil {
				return err
			}
			continue
		}
		if err := tw.WriteHeader(&tar.Header{
			Name: rel,
			Mode: 0o644,
			Size: int64(len(node.Contents)),
		}); err != nil {
			return err
		}
		if _, err := io.WriteString(tw, node.Contents); err != nil {
			return err
		}
	}
	return nil
}

func insertPath(tree protocol.FileTree, p string, contents string) {
	dir, rest, ok := strings.Cut(p, "/")
	if !ok {
		tree[p] = protocol.FileNode{Contents: contents}
		return
	}
	node, exists := tree[dir]
	if !exists || node.Children == nil {
		node = protocol.FileNode{Children: map[string]protocol.FileNode{}}
	}
	insertPath(node.Children, rest, contents)
	tree[dir] = node
}

func (h *Handle) Spawn(ctx context.Context, cmd string, args []string, opts runtime.SpawnOpts) (runtime.Process, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}

	workDir := workspaceDir
	if opts.Cwd != "" {
		workDir = h.workspacePath(opts.Cwd)
	}

	execResp, err := h.driver.docker.ContainerExecCreate(ctx, h.containerID, container.ExecOptions{
		Cmd:          append([]string{cmd}, args...),
		WorkingDir:   workDir,
		Env:          opts.Env,
		Tty:          opts.TTY,
		AttachStdin:  opts.TTY,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, h.mapErr(err)
	}

	attach, err := h.driver.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{Tty: opts.TTY})
	if err != nil {
		return nil, h.mapErr(err)
	}

	p := &process{
		handle: h,
		execID: execResp.ID,
		attach: attach,
		out:    make(chan string, 64),
		exit:   make(chan int, 1),
	}
	go p.pump(opts.TTY)

	h.driver.logger.Debug("spawned process", "instance_id", h.instanceID, "cmd", cmd, "tty", opts.TTY)
	return p, nil
}

// OnServerReady polls the published dev port on the host until a dev
// server accepts, then notifies every registered listener.
func (h *Handle) OnServerReady(fn func(port int, url string)) func() {
	h.readyMu.Lock()
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
	port := h.driver.run.DefaultPort
	addr := net.JoinHostPort(h.driver.run.Host, fmt.Sprintf("%d", port))
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

			h.readyMu.Lock()
			fns := make([]func(int, string), 0, len(h.readyFns))
			for _, fn := range h.readyFns {
				fns = append(fns, fn)
			}
			h.readyMu.Unlock()

			url := fmt.Sprintf("http://%s", addr)
			for _, fn := range fns {
				fn(port, url)
			}
			return
		}
	}
}

// Teardown force-removes the container and marks the handle released.
// Idempotent. Removal is asynchronous on the daemon side; callers that
// need the name freed apply a settle delay.
func (h *Handle) Teardown(ctx context.Context) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.mu.Unlock()

	close(h.pollStop)

	err := h.driver.docker.ContainerRemove(ctx, h.containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	h.driver.logger.Info("runtime container torn down", "instance_id", h.instanceID)
	return nil
}

type process struct {
	handle *Handle
	execID string
	attach types.HijackedResponse
	out    chan string
	exit   chan int
}

func (p *process) Output() <-chan string { return p.out }
func (p *process) Exit() <-chan int      { return p.exit }

// Kill signals the exec's process inside the container. Docker has no
// exec-kill API, so the PID is looked up and killed through a second
// exec.
func (p *process) Kill() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inspect, err := p.handle.driver.docker.ContainerExecInspect(ctx, p.execID)
	if err != nil {
		p.attach.Close()
		return p.handle.mapErr(err)
	}
	if !inspect.Running || inspect.Pid == 0 {
		p.attach.Close()
		return nil
	}

	_, err = p.handle.execCapture(ctx, []string{"kill", "-9", fmt.Sprintf("%d", inspect.Pid)})
	p.attach.Close()
	return err
}

func (p *process) pump(tty bool) {
	p.drainOutput(tty)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code := -1
	if inspect, err := p.handle.driver.docker.ContainerExecInspect(ctx, p.execID); err == nil {
		code = inspect.ExitCode
	}
	p.exit <- code
}

// drainOutput forwards the attach stream to the output channel until it
// ends, then closes the channel. TTY execs deliver a raw byte stream;
// non-TTY execs multiplex stdout/stderr in stdcopy frames.
func (p *process) drainOutput(tty bool) {
	if tty {
		buf := make([]byte, 4096)
		for {
			n, err := p.attach.Reader.Read(buf)
			if n > 0 {
				p.out <- string(buf[:n])
			}
			if err != nil {
				break
			}
		}
	} else {
		w := &chanWriter{out: p.out}
		stdcopy.StdCopy(w, w, p.attach.Reader)
	}
	close(p.out)
}

type chanWriter struct {
	out chan string
}

func (w *chanWriter) Write(b []byte) (int, error) {
	w.out <- string(b)
	return len(b), nil
}
