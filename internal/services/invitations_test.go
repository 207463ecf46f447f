package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/amqp"
	"metas/internal/core"
)

func TestInviteAndAccept(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	g := f.goal(t, owner, 5)

	inv, err := f.svc.Invitations.Invite(f.ctx, owner, g.ID, "  Bob@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", inv.InvitedEmail)
	assert.Equal(t, core.InvitationPending, inv.Status)

	_, err = f.svc.Invitations.Invite(f.ctx, owner, g.ID, "bob@example.com")
	assert.ErrorIs(t, err, core.ErrConflict, "one pending invitation per address")

	bob := f.session(t, "bob")
	mine := bob.Invitations()
	require.Len(t, mine, 1)
	assert.Equal(t, "Trip", mine[0].GoalTitle)

	accepted, err := f.svc.Invitations.Accept(f.ctx, bob, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.InvitationAccepted, accepted.Status)

	joined, ok := bob.Goal(g.ID)
	require.True(t, ok)
	assert.True(t, joined.IsGroup)
	assert.Equal(t, []string{"alice", "bob"}, joined.Participants)

	_, err = f.svc.Invitations.Accept(f.ctx, bob, inv.ID)
	assert.ErrorIs(t, err, core.ErrConflict)

	assert.Contains(t, f.pub.types(), amqp.EventInvitationAccepted)
}

func TestInvitationResponsesBelongToInvitee(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	g := f.goal(t, owner, 5)
	inv, err := f.svc.Invitations.Invite(f.ctx, owner, g.ID, "bob@example.com")
	require.NoError(t, err)

	mallory := f.session(t, "mallory")
	_, err = f.svc.Invitations.Accept(f.ctx, mallory, inv.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	bob := f.session(t, "bob")
	rejected, err := f.svc.Invitations.Reject(f.ctx, bob, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.InvitationRejected, rejected.Status)

	stored, err := f.backend.GetGoal(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, stored.Participants)

	_, err = f.svc.Invitations.Accept(f.ctx, bob, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInviteValidation(t *testing.T) {
	f := newFixture(t)
	owner := f.session(t, "alice")
	member := f.session(t, "bob")
	g := f.goal(t, owner, 5)
	f.join(t, owner, member, g.ID)

	tests := []struct {
		name  string
		email string
		want  error
	}{
		{"malformed", "not-an-email", core.ErrInvalidInput},
		{"empty", "", core.ErrInvalidInput},
		{"self", "alice@example.com", core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Invitations.Invite(f.ctx, owner, g.ID, tt.email)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.Invitations.Invite(f.ctx, member, g.ID, "carol@example.com")
	assert.ErrorIs(t, err, core.ErrForbidden)

	listed, err := f.svc.Invitations.ListForGoal(f.ctx, member, g.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, core.InvitationAccepted, listed[0].Status)
}
