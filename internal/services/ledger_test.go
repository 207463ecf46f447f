package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/amqp"
	"metas/internal/core"
)

func TestLedgerScenario(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 10)
	assert.Equal(t, int64(5500), g.TargetAmount.Cents)

	p3 := f.submit(t, st, g.ID, 3)
	p7 := f.submit(t, st, g.ID, 7)
	p10 := f.submit(t, st, g.ID, 10)

	_, err := f.svc.Ledger.DecideProof(f.ctx, st, p3.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Ledger.DecideProof(f.ctx, st, p7.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Ledger.DecideProof(f.ctx, st, p10.ID, false)
	require.NoError(t, err)

	agg, err := f.svc.Ledger.AggregateForGoal(f.ctx, st, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), agg.VerifiedTotal.Cents)
	assert.Equal(t, []int{3, 7}, agg.VerifiedSlots)
	assert.Equal(t, 0, agg.PendingCount)

	prog, err := f.svc.Goals.Progress(f.ctx, st, g.ID)
	require.NoError(t, err)
	assert.InDelta(t, 18.18, prog.Percentage, 0.01)
	assert.False(t, prog.Reached)
	assert.Equal(t, core.GoalActive, prog.Goal.Status)

	// The rejected slot is back in the pool.
	claimed := st.Claimed(g.ID)
	assert.True(t, claimed[3])
	assert.False(t, claimed[10])

	assert.Equal(t, []amqp.EventType{
		amqp.EventGoalCreated,
		amqp.EventProofSubmitted, amqp.EventProofSubmitted, amqp.EventProofSubmitted,
		amqp.EventProofDecided, amqp.EventProofDecided, amqp.EventProofDecided,
	}, f.pub.types())
}

func TestSubmitProofDrawsWhenSlotIsZero(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 5)

	p := f.submit(t, st, g.ID, 0)
	assert.True(t, g.ValidSlot(p.Slot))
	assert.Equal(t, core.DecisionPending, p.Decision)
	assert.Equal(t, "alice", p.UserID)
	assert.Empty(t, st.Available(g.ID))
	assert.Len(t, st.Proofs(g.ID), 1)
}

func TestSubmitProofConsumesDrawnSlot(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 5)

	slots, err := f.svc.Pool.RequestSlots(f.ctx, st, g.ID, 2)
	require.NoError(t, err)

	f.submit(t, st, g.ID, slots[0])
	assert.Equal(t, slots[1:], st.Available(g.ID))
	assert.True(t, st.Claimed(g.ID)[slots[0]])
}

func TestSubmitProofErrors(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 5)
	f.join(t, owner, member, g.ID)
	f.submit(t, owner, g.ID, 2)

	tests := []struct {
		name string
		slot int
		want error
	}{
		{"below range", -1, core.ErrInvalidInput},
		{"above range", 6, core.ErrInvalidInput},
		{"held by another user", 2, core.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ledger.SubmitProof(f.ctx, member, upload(g.ID, tt.slot))
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, member.Proofs(g.ID))
		})
	}

	_, err := f.svc.Ledger.SubmitProof(f.ctx, f.session(t, "mallory"), upload(g.ID, 3))
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestDecideProofOwnerOnly(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 5)
	f.join(t, owner, member, g.ID)

	p := f.submit(t, member, g.ID, 4)
	_, err := f.svc.Ledger.DecideProof(f.ctx, member, p.ID, true)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.Ledger.DecideProof(f.ctx, owner, "missing", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDecideProofIsFinal(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 5)
	p := f.submit(t, st, g.ID, 4)

	decided, err := f.svc.Ledger.DecideProof(f.ctx, st, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, core.DecisionRejected, decided.Decision)
	assert.Equal(t, "alice", decided.VerifiedBy)
	require.NotNil(t, decided.VerifiedAt)

	_, err = f.svc.Ledger.DecideProof(f.ctx, st, p.ID, true)
	assert.ErrorIs(t, err, core.ErrAlreadyDecided)
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestRejectedSlotCanBeResubmitted(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 5)
	f.join(t, owner, member, g.ID)

	p := f.submit(t, member, g.ID, 3)
	_, err := f.svc.Ledger.DecideProof(f.ctx, owner, p.ID, false)
	require.NoError(t, err)

	again := f.submit(t, owner, g.ID, 3)
	assert.Equal(t, 3, again.Slot)
}

func TestRejectedSlotRedrawnFromStaleState(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 1)
	f.join(t, owner, member, g.ID)

	p := f.submit(t, member, g.ID, 1)
	_, err := f.svc.Ledger.DecideProof(f.ctx, owner, p.ID, false)
	require.NoError(t, err)
	// bob's cache still lists the proof as pending.
	require.Equal(t, core.DecisionPending, member.Proofs(g.ID)[0].Decision)

	slots, err := f.svc.Pool.RequestSlots(f.ctx, member, g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, slots)
	assert.Equal(t, []int{1}, member.Available(g.ID))
	require.Len(t, member.Proofs(g.ID), 1)
	assert.Equal(t, core.DecisionRejected, member.Proofs(g.ID)[0].Decision)

	_, err = f.svc.Pool.RequestSlots(f.ctx, member, g.ID, 1)
	assert.ErrorIs(t, err, core.ErrExhaustedPool)

	again := f.submit(t, member, g.ID, 1)
	assert.Equal(t, core.DecisionPending, again.Decision)
	assert.Empty(t, member.Available(g.ID))
}

func TestResubmitWithDrawAfterRejection(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 1)
	f.join(t, owner, member, g.ID)

	p := f.submit(t, member, g.ID, 1)
	_, err := f.svc.Ledger.DecideProof(f.ctx, owner, p.ID, false)
	require.NoError(t, err)

	again := f.submit(t, member, g.ID, 0)
	assert.Equal(t, 1, again.Slot)
	assert.NotEqual(t, p.ID, again.ID)
}

func TestApprovalCompletesGoal(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 2)

	p1 := f.submit(t, st, g.ID, 1)
	p2 := f.submit(t, st, g.ID, 2)

	_, err := f.svc.Ledger.DecideProof(f.ctx, st, p1.ID, true)
	require.NoError(t, err)
	cached, _ := st.Goal(g.ID)
	assert.Equal(t, core.GoalActive, cached.Status)

	_, err = f.svc.Ledger.DecideProof(f.ctx, st, p2.ID, true)
	require.NoError(t, err)

	stored, err := f.backend.GetGoal(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, core.GoalCompleted, stored.Status)
	cached, _ = st.Goal(g.ID)
	assert.Equal(t, core.GoalCompleted, cached.Status)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errBroker
	st := f.session(t, "alice")
	g := f.goal(t, st, 3)

	p := f.submit(t, st, g.ID, 1)
	_, err := f.svc.Ledger.DecideProof(f.ctx, st, p.ID, true)
	require.NoError(t, err)
	assert.Empty(t, f.pub.types())
}

func TestListProofsRefreshesCache(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 5)
	f.join(t, owner, member, g.ID)
	f.submit(t, member, g.ID, 5)

	assert.Empty(t, owner.Proofs(g.ID))
	proofs, err := f.svc.Ledger.ListProofs(f.ctx, owner, g.ID)
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	assert.Equal(t, proofs, owner.Proofs(g.ID))
}
