package state

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/core"
)

func signedIn(t *testing.T) *AppState {
	t.Helper()
	s := New()
	s.SignIn(core.User{ID: "u1", Email: "u1@example.com"},
		[]core.Goal{{ID: "g1", Title: "Casa", SlotCount: 10, Participants: []string{"u1"}}},
		[]core.Invitation{{ID: "i1", GoalID: "g1", Status: core.InvitationPending}})
	return s
}

func TestLifecycle(t *testing.T) {
	s := New()
	_, err := s.RequireUser()
	require.ErrorIs(t, err, core.ErrNotAuthenticated)

	s = signedIn(t)
	u, err := s.RequireUser()
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Len(t, s.Goals(), 1)
	assert.Equal(t, []string{"u1"}, s.Participants("g1"))

	s.SetProofs("g1", []core.Proof{{ID: "p1", GoalID: "g1", Slot: 3}})
	s.AddAvailable("g1", []int{5, 2})

	s.SignOut()
	_, ok := s.User()
	assert.False(t, ok)
	assert.Empty(t, s.Goals())
	assert.Empty(t, s.Invitations())
	assert.Empty(t, s.Proofs("g1"))
	assert.Empty(t, s.Available("g1"))
}

func TestReadersGetCopies(t *testing.T) {
	s := signedIn(t)
	goals := s.Goals()
	goals[0].Participants[0] = "mutated"
	goals[0].Title = "mutated"

	g, ok := s.Goal("g1")
	require.True(t, ok)
	assert.Equal(t, "Casa", g.Title)
	assert.Equal(t, []string{"u1"}, g.Participants)
}

func TestAvailablePool(t *testing.T) {
	s := signedIn(t)
	s.AddAvailable("g1", []int{7, 3})
	s.AddAvailable("g1", []int{3, 9})
	assert.Equal(t, []int{3, 7, 9}, s.Available("g1"))

	s.RemoveAvailable("g1", 7)
	s.RemoveAvailable("g1", 7)
	assert.Equal(t, []int{3, 9}, s.Available("g1"))

	s.PutProof(core.Proof{ID: "p1", GoalID: "g1", Slot: 4, Decision: core.DecisionPending})
	s.PutProof(core.Proof{ID: "p2", GoalID: "g1", Slot: 5, Decision: core.DecisionRejected})
	assert.Equal(t, map[int]bool{3: true, 4: true, 9: true}, s.Claimed("g1"))
}

func TestRemoveGoalDropsDependents(t *testing.T) {
	s := signedIn(t)
	s.PutProof(core.Proof{ID: "p1", GoalID: "g1", Slot: 1})
	s.AddAvailable("g1", []int{2})
	s.RemoveGoal("g1")

	_, ok := s.Goal("g1")
	assert.False(t, ok)
	assert.Empty(t, s.Invitations())
	assert.Empty(t, s.Proofs("g1"))
	assert.Empty(t, s.Available("g1"))
	assert.Empty(t, s.Participants("g1"))
}

func TestPutGoalAndInvitationReplace(t *testing.T) {
	s := signedIn(t)
	s.PutGoal(core.Goal{ID: "g1", Title: "Carro", Participants: []string{"u1", "u2"}})
	s.PutGoal(core.Goal{ID: "g2", Title: "Novo"})
	require.Len(t, s.Goals(), 2)
	g, _ := s.Goal("g1")
	assert.Equal(t, "Carro", g.Title)
	assert.Equal(t, []string{"u1", "u2"}, s.Participants("g1"))

	s.PutInvitation(core.Invitation{ID: "i1", GoalID: "g1", Status: core.InvitationAccepted})
	require.Len(t, s.Invitations(), 1)
	assert.Equal(t, core.InvitationAccepted, s.Invitations()[0].Status)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := signedIn(t)
	s.PutProof(core.Proof{ID: "p1", GoalID: "g1", Slot: 3, Decision: core.DecisionApproved})
	s.AddAvailable("g1", []int{8})

	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf))

	restored := New()
	require.NoError(t, restored.Load(&buf))
	u, ok := restored.User()
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, s.Goals(), restored.Goals())
	assert.Equal(t, s.Proofs("g1"), restored.Proofs("g1"))
	assert.Equal(t, []int{8}, restored.Available("g1"))
}

func TestSnapshotVersionMismatchLeavesStateAlone(t *testing.T) {
	s := signedIn(t)
	err := s.Load(strings.NewReader(`{"version":1,"goals":[]}`))
	require.ErrorIs(t, err, ErrSnapshotVersion)
	assert.Len(t, s.Goals(), 1)

	err = s.Load(strings.NewReader(`not json`))
	require.Error(t, err)
	assert.Len(t, s.Goals(), 1)
}

func TestSnapshotStore(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	fresh := New()
	require.ErrorIs(t, store.Restore("u1", fresh), ErrNoSnapshot)

	require.NoError(t, store.Save("u1", signedIn(t)))
	require.NoError(t, store.Restore("u1", fresh))
	assert.Len(t, fresh.Goals(), 1)

	require.NoError(t, store.Delete("u1"))
	require.NoError(t, store.Delete("u1"))
	assert.ErrorIs(t, store.Restore("u1", New()), ErrNoSnapshot)
}
