package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-voss/devcell/internal/runtime"
)

func TestOpenShellSpawnsTTYAndRegisters(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	_, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)
	h := d.live
	h.spawnFn = func(cmd string, args []string) (runtime.Process, error) {
		return newFakeProcess("shell", d.events), nil
	}

	p, err := c.OpenShell(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Contains(t, d.events.list(), "spawn-tty:sh")
	assert.Equal(t, 1, c.Stats().TrackedProcs)
}

func TestOpenShellWithoutSession(t *testing.T) {
	c, _ := newTestController(newFakeDriver())

	_, err := c.OpenShell(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOpenShellReplacesExistingShell(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	_, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	first := newFakeProcess("shell-1", d.events)
	second := newFakeProcess("shell-2", d.events)
	procs := []*fakeProcess{first, second}
	d.live.spawnFn = func(cmd string, args []string) (runtime.Process, error) {
		p := procs[0]
		procs = procs[1:]
		return p, nil
	}

	_, err = c.OpenShell(context.Background())
	require.NoError(t, err)
	_, err = c.OpenShell(context.Background())
	require.NoError(t, err)

	assert.Contains(t, d.events.list(), "kill:shell-1")
	assert.Equal(t, 1, c.Stats().TrackedProcs)
	first.mu.Lock()
	defer first.mu.Unlock()
	assert.True(t, first.killed)
}

func TestOpenShellKilledBeforeOtherProcessesOnDestroy(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	_, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)
	d.live.spawnFn = func(cmd string, args []string) (runtime.Process, error) {
		return newFakeProcess("shell", d.events), nil
	}

	_, err = c.OpenShell(context.Background())
	require.NoError(t, err)
	c.RegisterProcess(newFakeProcess("worker", d.events))

	require.NoError(t, c.DestroyRuntime(context.Background(), nil))

	events := d.events.list()
	require.Contains(t, events, "kill:shell")
	assert.Less(t, indexOfEvent(events, "kill:shell"), indexOfEvent(events, "kill:worker"))
	assert.Less(t, indexOfEvent(events, "kill:worker"), indexOfEvent(events, "teardown"))
}
