package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryKillAllShellFirst(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(testLogger())

	r.RegisterProcess(newFakeProcess("p1", events))
	r.RegisterProcess(newFakeProcess("p2", events))
	r.RegisterShell(newFakeProcess("shell", events))

	r.KillAll(nil)

	assert.Equal(t, []string{"kill:shell", "kill:p1", "kill:p2"}, events.list())
	assert.Equal(t, 0, r.Count())
}

func TestRegistryKillAllSwallowsErrors(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(testLogger())

	bad := newFakeProcess("bad", events)
	bad.killErr = errors.New("process already gone")
	r.RegisterProcess(bad)
	r.RegisterProcess(newFakeProcess("good", events))

	var logged []string
	r.KillAll(func(line string) { logged = append(logged, line) })

	// The failed kill is reported but does not stop the sweep.
	assert.Contains(t, events.list(), "kill:good")
	assert.NotEmpty(t, logged)
	assert.Equal(t, 0, r.Count())
}

func TestRegistryRegisterShellReplacesAndKills(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(testLogger())

	r.RegisterShell(newFakeProcess("old-shell", events))
	r.RegisterShell(newFakeProcess("new-shell", events))

	assert.Equal(t, []string{"kill:old-shell"}, events.list())
	assert.Equal(t, 1, r.Count())

	r.KillAll(nil)
	assert.Contains(t, events.list(), "kill:new-shell")
}

func TestRegistryClearDoesNotKill(t *testing.T) {
	events := &eventLog{}
	r := NewRegistry(testLogger())

	p := newFakeProcess("p1", events)
	r.RegisterProcess(p)
	r.RegisterShell(newFakeProcess("shell", events))
	r.Clear()

	assert.Equal(t, 0, r.Count())
	assert.Empty(t, events.list())
}

func TestRegistryCount(t *testing.T) {
	r := NewRegistry(testLogger())
	assert.Equal(t, 0, r.Count())

	r.RegisterProcess(newFakeProcess("p1", nil))
	assert.Equal(t, 1, r.Count())

	r.RegisterShell(newFakeProcess("shell", nil))
	assert.Equal(t, 2, r.Count())
}
