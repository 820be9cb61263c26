package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-voss/devcell/internal/config"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/internal/slot"
	"github.com/m-voss/devcell/protocol"
)

func testConfig() *config.Config {
	return &config.Config{
		PreservedPaths: []string{"tmp", "proc", "dev"},
		Boot: config.BootConfig{
			MaxAttempts:   3,
			BackoffBaseMs: 10,
			SettleMs:      1,
		},
		Run: config.RunConfig{
			InstallCmd:          "npm install",
			StartCmd:            "npm run dev",
			StaticCmd:           "npx serve .",
			ShellCmd:            "sh",
			Host:                "127.0.0.1",
			DefaultPort:         5173,
			ManualDetectDelayMs: 20,
			DevServerTimeoutMs:  2000,
			StaticTimeoutMs:     100,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(d *fakeDriver) (*Controller, *slot.Slot) {
	sl := slot.New()
	c := New(testConfig(), d, sl, nil, testLogger())
	c.sleep = func(time.Duration) {}
	return c, sl
}

func TestGetOrBootBootsFresh(t *testing.T) {
	d := newFakeDriver()
	c, sl := newTestController(d)

	h, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 1, d.bootCount())
	assert.Same(t, h, sl.Get())
	assert.Equal(t, protocol.SharedProjectID, c.Status().ProjectID)
	assert.Equal(t, protocol.StatusReady, c.Status().Status)
}

func TestGetOrBootIdempotentReuse(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	h1, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)
	h2, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, d.bootCount())
}

func TestGetOrBootCoalescesConcurrentCallers(t *testing.T) {
	d := newFakeDriver()
	d.bootDelay = 50 * time.Millisecond
	c, _ := newTestController(d)

	var wg sync.WaitGroup
	results := make([]any, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBoot(context.Background(), nil)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, 1, d.bootCount())
	assert.Same(t, results[0], results[1])
}

func TestGetOrBootReusesAcrossRemount(t *testing.T) {
	d := newFakeDriver()
	c1, sl := newTestController(d)

	h1, err := c1.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	// A fresh controller object in the same process (UI remount) must
	// discover the live handle through the slot instead of booting again.
	c2 := New(testConfig(), d, sl, nil, testLogger())
	c2.sleep = func(time.Duration) {}

	h2, err := c2.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, d.bootCount())
}

func TestGetOrBootRecoversDeadHandle(t *testing.T) {
	d := newFakeDriver()
	c, sl := newTestController(d)

	h1, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	h1.(*fakeHandle).setReleased()

	h2, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, d.bootCount())
	assert.Same(t, h2, sl.Get())
}

func TestGetOrBootPropagatesUnknownProbeError(t *testing.T) {
	d := newFakeDriver()
	c, sl := newTestController(d)

	// An unrecognized probe failure must not be masked as "dead".
	sl.Set(&probeFailHandle{fakeHandle: newFakeHandle(d, d.events)})

	_, err := c.GetOrBoot(context.Background(), nil)
	assert.ErrorContains(t, err, "permission denied")
	// Slot stays untouched: we do not know the handle is dead.
	assert.NotNil(t, sl.Get())
	assert.Equal(t, 0, d.bootCount())
}

type probeFailHandle struct {
	*fakeHandle
}

func (h *probeFailHandle) ReadDir(ctx context.Context, path string) ([]runtime.DirEntry, error) {
	return nil, errors.New("permission denied")
}

func TestBootRetriesWithBackoff(t *testing.T) {
	d := newFakeDriver()
	d.failFirst = 2
	c, _ := newTestController(d)

	var waits []time.Duration
	c.sleep = func(dur time.Duration) { waits = append(waits, dur) }

	h, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 3, d.bootCount())
	// Backoff grows with the attempt number: base*1 then base*2, then the
	// post-boot settle delay.
	require.Len(t, waits, 3)
	assert.Equal(t, 10*time.Millisecond, waits[0])
	assert.Equal(t, 20*time.Millisecond, waits[1])
}

func TestBootExhaustionIsTerminal(t *testing.T) {
	d := newFakeDriver()
	d.bootErr = errors.New("webgl context lost")
	c, sl := newTestController(d)

	_, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.Error(t, err)
	assert.ErrorContains(t, err, "3 attempts")
	assert.ErrorContains(t, err, "webgl context lost")
	assert.ErrorContains(t, err, "restart")

	// No partial state survives a failed boot.
	assert.Nil(t, c.Handle())
	assert.Nil(t, sl.Get())
	assert.False(t, c.Status().Exists)
}

func TestBootRuntimeReusesSameProject(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	h1, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)
	h2, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, d.bootCount())
}

func TestBootRuntimeTearsDownBeforeProjectChange(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	h1, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)

	h2, err := c.BootRuntime(context.Background(), "proj-b", nil, false)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.False(t, h1.(*fakeHandle).alive())
	assert.Equal(t, 2, d.bootCount())
}

func TestBootRuntimeForceNew(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	h1, err := c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)

	h2, err := c.BootRuntime(context.Background(), "proj-a", nil, true)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.False(t, h1.(*fakeHandle).alive())
}

func TestSingleInstanceInvariant(t *testing.T) {
	d := newFakeDriver()
	c, _ := newTestController(d)

	// The fake driver refuses a second live instance, so any sequence of
	// acquisitions that violated the invariant would surface here.
	_, err := c.GetOrBoot(context.Background(), nil)
	require.NoError(t, err)
	_, err = c.BootRuntime(context.Background(), "proj-a", nil, false)
	require.NoError(t, err)
	_, err = c.BootRuntime(context.Background(), "proj-b", nil, false)
	require.NoError(t, err)
	_, err = c.BootRuntime(context.Background(), "proj-b", nil, true)
	require.NoError(t, err)

	liveCount := 0
	for _, h := range d.handles {
		if h.alive() {
			liveCount++
		}
	}
	assert.Equal(t, 1, liveCount)
}
