package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/state"
)

func signedIn(id string) *state.AppState {
	st := state.New()
	st.SignIn(core.User{ID: id, Email: id + "@example.com"}, []core.Goal{{ID: "g-" + id, Title: "t", SlotCount: 3}}, nil)
	st.SetAvailable("g-"+id, []int{2})
	return st
}

func TestStoreRoundTrip(t *testing.T) {
	s := New(10, time.Hour, nil, log.Discard())
	_, ok := s.Get("alice")
	assert.False(t, ok)

	st := signedIn("alice")
	s.Put("alice", st)
	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Same(t, st, got)
	assert.Equal(t, 1, s.Len())
}

func TestEvictedSessionIsRestored(t *testing.T) {
	snaps, err := state.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)
	s := New(1, time.Hour, snaps, log.Discard())

	s.Put("alice", signedIn("alice"))
	s.Put("bob", signedIn("bob"))
	assert.Equal(t, 1, s.Len())

	restored, ok := s.Get("alice")
	require.True(t, ok)
	u, _ := restored.User()
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, []int{2}, restored.Available("g-alice"))
}

func TestDropRemovesSnapshot(t *testing.T) {
	snaps, err := state.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)
	s := New(10, time.Hour, snaps, log.Discard())

	s.Put("alice", signedIn("alice"))
	assert.Equal(t, 1, s.Flush())
	s.Drop("alice")

	_, ok := s.Get("alice")
	assert.False(t, ok)
}

func TestForeignSnapshotIsIgnored(t *testing.T) {
	snaps, err := state.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, snaps.Save("alice", signedIn("mallory")))

	s := New(10, time.Hour, snaps, log.Discard())
	_, ok := s.Get("alice")
	assert.False(t, ok)
}

func TestFlushSkipsSignedOut(t *testing.T) {
	snaps, err := state.NewSnapshotStore(t.TempDir())
	require.NoError(t, err)
	s := New(10, time.Hour, snaps, log.Discard())

	s.Put("ghost", state.New())
	s.Put("alice", signedIn("alice"))
	assert.Equal(t, 1, s.Flush())
}
