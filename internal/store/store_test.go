package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-voss/devcell/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSetStateAndGet(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetState("proj-1", protocol.ProjectRunning, "http://127.0.0.1:5173", 5173))

	got, err := st.Get("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Equal(t, protocol.ProjectRunning, got.State)
	assert.Equal(t, "http://127.0.0.1:5173", got.URL)
	assert.Equal(t, 5173, got.Port)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSetStateUpsert(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetState("proj-1", protocol.ProjectRunning, "http://127.0.0.1:5173", 5173))
	require.NoError(t, st.SetState("proj-1", protocol.ProjectIdle, "", 0))

	got, err := st.Get("proj-1")
	require.NoError(t, err)
	assert.Equal(t, protocol.ProjectIdle, got.State)
	assert.Empty(t, got.URL)
	assert.Zero(t, got.Port)
}

func TestGetNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetState("a", protocol.ProjectIdle, "", 0))
	require.NoError(t, st.SetState("b", protocol.ProjectError, "", 0))

	all, err := st.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDelete(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetState("a", protocol.ProjectIdle, "", 0))
	require.NoError(t, st.Delete("a"))

	_, err := st.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, st.Delete("a"), ErrNotFound)
}
