package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/backend"
	"metas/internal/backend/memory"
	"metas/internal/core"
	"metas/internal/state"
)

func TestRequestSlotsRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Pool.RequestSlots(f.ctx, state.New(), "g", 1)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestRequestSlotsUnknownGoal(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	_, err := f.svc.Pool.RequestSlots(f.ctx, st, "missing", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRequestSlotsRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	g := f.goal(t, owner, 5)

	_, err := f.svc.Pool.RequestSlots(f.ctx, f.session(t, "mallory"), g.ID, 1)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestRequestSlotsUntilExhausted(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 3)

	slots, err := f.svc.Pool.RequestSlots(f.ctx, st, g.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, slots)
	assert.Equal(t, []int{1, 2, 3}, st.Available(g.ID))

	_, err = f.svc.Pool.RequestSlots(f.ctx, st, g.ID, 1)
	require.ErrorIs(t, err, core.ErrExhaustedPool)
	assert.NotErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, []int{1, 2, 3}, st.Available(g.ID), "failed request must not touch the cache")
}

func TestRequestSlotsUniqueAcrossUsers(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 20)
	f.join(t, owner, member, g.ID)

	a, err := f.svc.Pool.RequestSlots(f.ctx, owner, g.ID, 10)
	require.NoError(t, err)
	b, err := f.svc.Pool.RequestSlots(f.ctx, member, g.ID, 10)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, s := range append(a, b...) {
		assert.False(t, seen[s], "slot %d handed out twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, 20)
}

func TestRequestSlotsInvalidCount(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 3)
	_, err := f.svc.Pool.RequestSlots(f.ctx, st, g.ID, 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

// collidingBackend hands back a fixed reply regardless of what is claimed.
type collidingBackend struct {
	backend.Backend
	reply []int
}

func (c collidingBackend) AllocateSlots(context.Context, string, string, int) ([]int, error) {
	return c.reply, nil
}

func TestRequestSlotsSurfacesCollision(t *testing.T) {
	mem := memory.New()
	f := newFixtureWith(t, mem)
	st := f.session(t, "alice")
	g := f.goal(t, st, 10)
	st.SetAvailable(g.ID, []int{4})

	bad := newFixtureWith(t, collidingBackend{Backend: mem, reply: []int{4, 5}})
	_, err := bad.svc.Pool.RequestSlots(f.ctx, st, g.ID, 2)
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, []int{4}, st.Available(g.ID))

	bad = newFixtureWith(t, collidingBackend{Backend: mem, reply: []int{11}})
	_, err = bad.svc.Pool.RequestSlots(f.ctx, st, g.ID, 1)
	assert.ErrorIs(t, err, core.ErrConflict)

	// A live proof the state has not seen yet still counts as a collision.
	other := f.session(t, "alice")
	f.submit(t, other, g.ID, 6)
	bad = newFixtureWith(t, collidingBackend{Backend: mem, reply: []int{6}})
	_, err = bad.svc.Pool.RequestSlots(f.ctx, st, g.ID, 1)
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, []int{4}, st.Available(g.ID))
}

func TestReleaseOrConsumeSlotIdempotent(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 4)

	slots, err := f.svc.Pool.RequestSlots(f.ctx, st, g.ID, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.Pool.ReleaseOrConsumeSlot(f.ctx, st, g.ID, slots[0]))
	require.NoError(t, f.svc.Pool.ReleaseOrConsumeSlot(f.ctx, st, g.ID, slots[0]))
	assert.Equal(t, slots[1:], st.Available(g.ID))

	drawn, err := f.backend.DrawnSlots(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, slots[1:], drawn)
}

func TestReleaseOrConsumeSlotOfOtherUser(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 1)
	f.join(t, owner, member, g.ID)

	_, err := f.svc.Pool.RequestSlots(f.ctx, owner, g.ID, 1)
	require.NoError(t, err)

	err = f.svc.Pool.ReleaseOrConsumeSlot(f.ctx, member, g.ID, 1)
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, []int{1}, owner.Available(g.ID))
}

func TestDrawSlot(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	g := f.goal(t, st, 30)

	d, err := f.svc.Pool.DrawSlot(f.ctx, st, g.ID)
	require.NoError(t, err)
	require.Len(t, d.Frames, 8)
	assert.Equal(t, d.Slot, d.Frames[len(d.Frames)-1])
	for _, v := range d.Frames {
		assert.True(t, v >= 1 && v <= 30)
	}
	assert.Equal(t, []int{d.Slot}, st.Available(g.ID))
}
