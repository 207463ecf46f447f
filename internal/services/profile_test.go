package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/core"
	"metas/internal/state"
)

func TestSignInLoadsWorkingSet(t *testing.T) {
	f := newFixture(t)
	alice := f.session(t, "alice")
	g := f.goal(t, alice, 6)
	other := f.goal(t, alice, 6)
	slots, err := f.svc.Pool.RequestSlots(f.ctx, alice, g.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.Invitations.Invite(f.ctx, alice, other.ID, "bob@example.com")
	require.NoError(t, err)

	fresh := state.New()
	u, err := f.svc.Profile.SignIn(f.ctx, fresh, core.User{ID: "alice", Email: "ALICE@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Len(t, fresh.Goals(), 2)
	assert.Equal(t, slots, fresh.Available(g.ID))
	assert.Empty(t, fresh.Available(other.ID))
	assert.Empty(t, fresh.Invitations())

	bob := f.session(t, "bob")
	assert.Len(t, bob.Invitations(), 1)
	assert.Empty(t, bob.Goals())
}

func TestSignInRejectsAnonymous(t *testing.T) {
	f := newFixture(t)
	st := state.New()
	_, err := f.svc.Profile.SignIn(f.ctx, st, core.User{})
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	_, err = f.svc.Profile.SignIn(f.ctx, st, core.User{ID: "x", Email: "broken"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, ok := st.User()
	assert.False(t, ok)
}

func TestSignOutClearsState(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")
	f.goal(t, st, 3)

	f.svc.Profile.SignOut(f.ctx, st)
	_, ok := st.User()
	assert.False(t, ok)
	assert.Empty(t, st.Goals())

	_, err := f.svc.Goals.List(f.ctx, st)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
}

func TestUpdatePayoutKey(t *testing.T) {
	f := newFixture(t)
	st := f.session(t, "alice")

	u, err := f.svc.Profile.UpdatePayoutKey(f.ctx, st, "+55 (11) 9 1234-5678")
	require.NoError(t, err)
	assert.Equal(t, "5511912345678", u.PayoutKey)
	cached, _ := st.User()
	assert.Equal(t, u.PayoutKey, cached.PayoutKey)

	_, err = f.svc.Profile.UpdatePayoutKey(f.ctx, st, "no digits")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	// Signing in again keeps the stored key.
	again, err := f.svc.Profile.SignIn(f.ctx, state.New(), core.User{ID: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "5511912345678", again.PayoutKey)
}
