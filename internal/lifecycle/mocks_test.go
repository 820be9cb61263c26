package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/protocol"
)

type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) SetState(projectID string, state protocol.ProjectState, url string, port int) error {
	args := m.Called(projectID, state, url, port)
	return args.Error(0)
}

// fakeProcess is a scriptable runtime.Process that records kills into a
// shared event log.
type fakeProcess struct {
	name   string
	out    chan string
	exit   chan int
	events *eventLog

	mu      sync.Mutex
	killed  bool
	killErr error
}

func newFakeProcess(name string, events *eventLog) *fakeProcess {
	return &fakeProcess{
		name:   name,
		out:    make(chan string, 16),
		exit:   make(chan int, 1),
		events: events,
	}
}

// exitedProcess returns a process that already finished with code.
func exitedProcess(name string, events *eventLog, code int) *fakeProcess {
	p := newFakeProcess(name, events)
	p.finish(code)
	return p
}

func (p *fakeProcess) finish(code int) {
	close(p.out)
	p.exit <- code
}

func (p *fakeProcess) Output() <-chan string { return p.out }
func (p *fakeProcess) Exit() <-chan int      { return p.exit }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	if p.events != nil {
		p.events.add("kill:" + p.name)
	}
	return p.killErr
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeHandle implements runtime.Handle against an in-memory set of
// root-level entries.
type fakeHandle struct {
	driver *fakeDriver
	events *eventLog

	mu           sync.Mutex
	entries      map[string]bool // name -> isDir
	released     bool
	tornDown     bool
	removeErrFor string // entry name whose removal fails

	readyMu  sync.Mutex
	readyFns map[int]func(port int, url string)
	readySeq int

	// autoReady, when set, fires the native server-ready notification
	// shortly after a listener registers.
	autoReady *serverAddr

	// spawnFn overrides process creation; default is a process that has
	// already exited 0.
	spawnFn func(cmd string, args []string) (runtime.Process, error)
}

func newFakeHandle(d *fakeDriver, events *eventLog) *fakeHandle {
	return &fakeHandle{
		driver: d,
		events: events,
		entries: map[string]bool{
			"tmp":  true,
			"proc": true,
			"dev":  true,
		},
		readyFns: make(map[int]func(int, string)),
	}
}

func (h *fakeHandle) failIfReleased() error {
	if h.released {
		return errors.New("Proxy has been released and is not usable")
	}
	return nil
}

func (h *fakeHandle) ReadDir(ctx context.Context, path string) ([]runtime.DirEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failIfReleased(); err != nil {
		return nil, err
	}
	var names []string
	for name := range h.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]runtime.DirEntry, len(names))
	for i, name := range names {
		entries[i] = runtime.DirEntry{Name: name, IsDir: h.entries[name]}
	}
	return entries, nil
}

func (h *fakeHandle) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (h *fakeHandle) WriteFile(ctx context.Context, path string, data []byte) error {
	return nil
}

func (h *fakeHandle) MkdirAll(ctx context.Context, path string) error {
	return nil
}

func (h *fakeHandle) Remove(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failIfReleased(); err != nil {
		return err
	}
	name := path
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == h.removeErrFor {
		return fmt.Errorf("rm %s: resource busy", path)
	}
	delete(h.entries, name)
	if h.events != nil {
		h.events.add("remove:" + name)
	}
	return nil
}

func (h *fakeHandle) Mount(ctx context.Context, tree protocol.FileTree) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failIfReleased(); err != nil {
		return err
	}
	for name, node := range tree {
		h.entries[name] = node.Children != nil
	}
	if h.events != nil {
		h.events.add("mount")
	}
	return nil
}

func (h *fakeHandle) Spawn(ctx context.Context, cmd string, args []string, opts runtime.SpawnOpts) (runtime.Process, error) {
	if err := h.failIfReleased(); err != nil {
		return nil, err
	}
	if h.events != nil {
		if opts.TTY {
			h.events.add("spawn-tty:" + cmd)
		} else {
			h.events.add("spawn:" + cmd)
		}
	}
	if h.spawnFn != nil {
		return h.spawnFn(cmd, args)
	}
	return exitedProcess(cmd, h.events, 0), nil
}

func (h *fakeHandle) OnServerReady(fn func(port int, url string)) func() {
	h.readyMu.Lock()
	h.readySeq++
	id := h.readySeq
	h.readyFns[id] = fn
	auto := h.autoReady
	h.readyMu.Unlock()

	if auto != nil {
		go func() {
			time.Sleep(5 * time.Millisecond)
			fn(auto.port, auto.url)
		}()
	}
	return func() {
		h.readyMu.Lock()
		delete(h.readyFns, id)
		h.readyMu.Unlock()
	}
}

func (h *fakeHandle) fireServerReady(port int, url string) {
	h.readyMu.Lock()
	fns := make([]func(int, string), 0, len(h.readyFns))
	for _, fn := range h.readyFns {
		fns = append(fns, fn)
	}
	h.readyMu.Unlock()
	for _, fn := range fns {
		fn(port, url)
	}
}

func (h *fakeHandle) Teardown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events != nil {
		h.events.add("teardown")
	}
	h.tornDown = true
	return nil
}

func (h *fakeHandle) alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.tornDown && !h.released
}

func (h *fakeHandle) setReleased() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
}

func (h *fakeHandle) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	for name := range h.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fakeDriver enforces the real technology's constraint: booting while a
// live, non-torn-down instance exists fails with the single-instance
// signature.
type fakeDriver struct {
	events *eventLog

	mu        sync.Mutex
	bootCalls int
	failFirst int           // first N boots fail with a transient error
	bootErr   error         // when set, every boot fails with this
	bootDelay time.Duration // simulated boot latency
	live      *fakeHandle
	handles   []*fakeHandle
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{events: &eventLog{}}
}

func (d *fakeDriver) Boot(ctx context.Context) (runtime.Handle, error) {
	d.mu.Lock()
	d.bootCalls++
	call := d.bootCalls
	delay := d.bootDelay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bootErr != nil {
		return nil, d.bootErr
	}
	if call <= d.failFirst {
		return nil, fmt.Errorf("transient boot failure %d", call)
	}
	if d.live != nil && d.live.alive() {
		return nil, runtime.ErrSingleInstance
	}
	h := newFakeHandle(d, d.events)
	d.live = h
	d.handles = append(d.handles, h)
	return h, nil
}

func (d *fakeDriver) Ping(ctx context.Context) error { return nil }
func (d *fakeDriver) Close() error                   { return nil }

func (d *fakeDriver) bootCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bootCalls
}
