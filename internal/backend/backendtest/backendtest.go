// Package backendtest holds the behaviour every backend.Backend must share.
// Implementations call Run from their own tests.
package backendtest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/backend"
	"metas/internal/core"
)

// Run exercises b against the full collaborator contract. newBackend must
// return an empty backend on every call.
func Run(t *testing.T, newBackend func(t *testing.T) backend.Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b backend.Backend)
	}{
		{"GoalLifecycle", testGoalLifecycle},
		{"DeleteGoalWithVerifiedDeposits", testDeleteGuarded},
		{"AllocateSlots", testAllocateSlots},
		{"ConsumeSlot", testConsumeSlot},
		{"SubmitProof", testSubmitProof},
		{"DecideProof", testDecideProof},
		{"LedgerScenario", testLedgerScenario},
		{"Invitations", testInvitations},
		{"Users", testUsers},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newBackend(t))
		})
	}
}

func newGoal(t *testing.T, b backend.Backend, owner string, slots int) core.Goal {
	t.Helper()
	g, err := b.CreateGoal(context.Background(), core.Goal{
		Title:        "Meta",
		TargetAmount: core.TargetForSlots(slots),
		SlotCount:    slots,
		OwnerID:      owner,
		Participants: []string{owner},
		PayoutKey:    "123",
		Status:       core.GoalActive,
	})
	require.NoError(t, err)
	return g
}

func submit(t *testing.T, b backend.Backend, goalID, user string, slot int) core.Proof {
	t.Helper()
	p, err := b.SubmitProof(context.Background(), core.ProofUpload{
		GoalID:      goalID,
		UserID:      user,
		Slot:        slot,
		FileName:    "proof.png",
		ContentType: "image/png",
		Body:        strings.NewReader("png-bytes"),
	})
	require.NoError(t, err)
	return p
}

func testGoalLifecycle(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 10)
	assert.NotEmpty(t, g.ID)
	assert.False(t, g.CreatedAt.IsZero())
	assert.Equal(t, []string{"owner"}, g.Participants)

	other := newGoal(t, b, "someone", 5)

	got, err := b.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)
	assert.Equal(t, core.Money{Cents: 5500}, got.TargetAmount)

	mine, err := b.ListGoals(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, g.ID, mine[0].ID)

	got.Title = "Renamed"
	got.Status = core.GoalPaused
	updated, err := b.UpdateGoal(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, core.GoalPaused, updated.Status)

	paused, err := b.ListGoalsByStatus(ctx, core.GoalPaused)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, g.ID, paused[0].ID)

	require.NoError(t, b.DeleteGoal(ctx, g.ID))
	_, err = b.GetGoal(ctx, g.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	mine, err = b.ListGoals(ctx, "owner")
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = b.GetGoal(ctx, other.ID)
	assert.NoError(t, err)
	assert.ErrorIs(t, b.DeleteGoal(ctx, "missing"), core.ErrNotFound)
	_, err = b.UpdateGoal(ctx, core.Goal{ID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testDeleteGuarded(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 10)
	p := submit(t, b, g.ID, "owner", 4)
	_, err := b.DecideProof(ctx, p.ID, true, "owner")
	require.NoError(t, err)

	err = b.DeleteGoal(ctx, g.ID)
	require.ErrorIs(t, err, core.ErrConflict)
	_, err = b.GetGoal(ctx, g.ID)
	assert.NoError(t, err)

	// Pending and rejected proofs do not block deletion and are removed.
	g2 := newGoal(t, b, "owner", 10)
	submit(t, b, g2.ID, "owner", 1)
	rejected := submit(t, b, g2.ID, "owner", 2)
	_, err = b.DecideProof(ctx, rejected.ID, false, "owner")
	require.NoError(t, err)
	_, err = b.CreateInvitation(ctx, core.Invitation{GoalID: g2.ID, InvitedBy: "owner", InvitedEmail: "x@example.com"})
	require.NoError(t, err)

	require.NoError(t, b.DeleteGoal(ctx, g2.ID))
	_, err = b.GetProof(ctx, rejected.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	invs, err := b.ListInvitationsForEmail(ctx, "x@example.com")
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func testAllocateSlots(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 6)
	submit(t, b, g.ID, "owner", 2)

	first, err := b.AllocateSlots(ctx, g.ID, "owner", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	claimed := map[int]bool{2: true}
	require.NoError(t, core.ValidateAllocation(6, first, claimed))
	for _, s := range first {
		claimed[s] = true
	}

	second, err := b.AllocateSlots(ctx, g.ID, "guest", 5)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.NoError(t, core.ValidateAllocation(6, second, claimed))

	empty, err := b.AllocateSlots(ctx, g.ID, "owner", 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	drawn, err := b.DrawnSlots(ctx, g.ID, "owner")
	require.NoError(t, err)
	assert.ElementsMatch(t, first, drawn)

	_, err = b.AllocateSlots(ctx, "missing", "owner", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testConsumeSlot(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 3)
	slots, err := b.AllocateSlots(ctx, g.ID, "owner", 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	require.NoError(t, b.ConsumeSlot(ctx, g.ID, "owner", slots[0]))
	require.NoError(t, b.ConsumeSlot(ctx, g.ID, "owner", slots[0]))
	assert.ErrorIs(t, b.ConsumeSlot(ctx, g.ID, "guest", slots[0]), core.ErrConflict)

	drawn, err := b.DrawnSlots(ctx, g.ID, "owner")
	require.NoError(t, err)
	assert.Empty(t, drawn)

	rest, err := b.AllocateSlots(ctx, g.ID, "owner", 5)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.NotContains(t, rest, slots[0])
}

func testSubmitProof(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 10)

	drawn, err := b.AllocateSlots(ctx, g.ID, "guest", 1)
	require.NoError(t, err)
	require.Len(t, drawn, 1)

	_, err = b.SubmitProof(ctx, core.ProofUpload{GoalID: g.ID, UserID: "owner", Slot: drawn[0], FileName: "a.png", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, core.ErrConflict)

	p := submit(t, b, g.ID, "guest", drawn[0])
	assert.Equal(t, core.DecisionPending, p.Decision)
	assert.NotEmpty(t, p.FileRef)
	assert.Equal(t, drawn[0], p.Slot)

	_, err = b.SubmitProof(ctx, core.ProofUpload{GoalID: g.ID, UserID: "guest", Slot: drawn[0], FileName: "b.png", Body: strings.NewReader("y")})
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = b.SubmitProof(ctx, core.ProofUpload{GoalID: g.ID, UserID: "guest", Slot: 11, FileName: "c.png", Body: strings.NewReader("z")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = b.SubmitProof(ctx, core.ProofUpload{GoalID: "missing", UserID: "guest", Slot: 1, FileName: "d.png", Body: strings.NewReader("z")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	left, err := b.DrawnSlots(ctx, g.ID, "guest")
	require.NoError(t, err)
	assert.Empty(t, left)

	proofs, err := b.ListProofs(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, p.ID, proofs[0].ID)
}

func testDecideProof(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 1)
	p := submit(t, b, g.ID, "owner", 1)

	empty, err := b.AllocateSlots(ctx, g.ID, "owner", 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	rejected, err := b.DecideProof(ctx, p.ID, false, "owner")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionRejected, rejected.Decision)
	assert.Equal(t, "owner", rejected.VerifiedBy)
	require.NotNil(t, rejected.VerifiedAt)

	_, err = b.DecideProof(ctx, p.ID, true, "owner")
	require.ErrorIs(t, err, core.ErrAlreadyDecided)

	again, err := b.AllocateSlots(ctx, g.ID, "owner", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, again)

	_, err = b.DecideProof(ctx, "missing", true, "owner")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testLedgerScenario(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 10)
	p3 := submit(t, b, g.ID, "owner", 3)
	p7 := submit(t, b, g.ID, "owner", 7)
	p10 := submit(t, b, g.ID, "owner", 10)

	for _, d := range []struct {
		id      string
		approve bool
	}{{p3.ID, true}, {p7.ID, true}, {p10.ID, false}} {
		_, err := b.DecideProof(ctx, d.id, d.approve, "owner")
		require.NoError(t, err)
	}

	proofs, err := b.ListProofs(ctx, g.ID)
	require.NoError(t, err)
	agg := core.AggregateProofs(proofs)
	assert.Equal(t, core.Money{Cents: 1000}, agg.VerifiedTotal)
	assert.Equal(t, []int{3, 7}, agg.VerifiedSlots)
	assert.Equal(t, 0, agg.PendingCount)
	assert.InDelta(t, 18.18, core.ProgressPercentage(agg.VerifiedTotal, g.TargetAmount), 0.01)
}

func testInvitations(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	g := newGoal(t, b, "owner", 10)

	inv, err := b.CreateInvitation(ctx, core.Invitation{GoalID: g.ID, InvitedBy: "owner", InvitedEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, core.InvitationPending, inv.Status)
	assert.Equal(t, "Meta", inv.GoalTitle)

	_, err = b.CreateInvitation(ctx, core.Invitation{GoalID: g.ID, InvitedBy: "owner", InvitedEmail: "ana@example.com"})
	assert.ErrorIs(t, err, core.ErrConflict)
	_, err = b.CreateInvitation(ctx, core.Invitation{GoalID: "missing", InvitedBy: "owner", InvitedEmail: "ana@example.com"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	mine, err := b.ListInvitationsForEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	forGoal, err := b.ListInvitationsForGoal(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, forGoal, 1)

	accepted, err := b.RespondInvitation(ctx, inv.ID, core.InvitationAccepted, "ana")
	require.NoError(t, err)
	assert.Equal(t, core.InvitationAccepted, accepted.Status)

	_, err = b.RespondInvitation(ctx, inv.ID, core.InvitationRejected, "ana")
	assert.ErrorIs(t, err, core.ErrConflict)

	got, err := b.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.IsGroup)
	assert.Equal(t, []string{"owner", "ana"}, got.Participants)

	listed, err := b.ListGoals(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// A fresh invitation after the first was answered is allowed.
	second, err := b.CreateInvitation(ctx, core.Invitation{GoalID: g.ID, InvitedBy: "owner", InvitedEmail: "ana@example.com"})
	require.NoError(t, err)
	rejected, err := b.RespondInvitation(ctx, second.ID, core.InvitationRejected, "ana")
	require.NoError(t, err)
	assert.Equal(t, core.InvitationRejected, rejected.Status)

	_, err = b.GetInvitation(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testUsers(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	_, err := b.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	u, err := b.UpsertUser(ctx, core.User{ID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)

	u, err = b.UpdatePayoutKey(ctx, "u1", "12345678900")
	require.NoError(t, err)
	assert.Equal(t, "12345678900", u.PayoutKey)

	u, err = b.UpsertUser(ctx, core.User{ID: "u1", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "12345678900", u.PayoutKey)
	assert.Equal(t, "new@example.com", u.Email)

	_, err = b.UpdatePayoutKey(ctx, "nobody", "1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
