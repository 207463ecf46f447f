package services

import (
	"context"
	"fmt"

	"metas/internal/amqp"
	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/state"
)

// InvitationService lets owners invite people by email and invitees answer.
type InvitationService struct {
	*base
}

// Invite creates a pending invitation to goalID for email. Owner only.
func (s *InvitationService) Invite(ctx context.Context, st *state.AppState, goalID, email string) (core.Invitation, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Invitation{}, err
	}
	addr, err := core.NormalizeEmail(email)
	if err != nil {
		return core.Invitation{}, err
	}
	if own, _ := core.NormalizeEmail(u.Email); own != "" && own == addr {
		return core.Invitation{}, &core.ValidationError{Fields: map[string]string{"email": "cannot invite yourself"}}
	}
	if _, err := s.ownedGoal(ctx, u, goalID); err != nil {
		return core.Invitation{}, err
	}

	inv, err := s.backend.CreateInvitation(ctx, core.Invitation{
		GoalID:       goalID,
		InvitedBy:    u.ID,
		InvitedEmail: addr,
	})
	if err != nil {
		return core.Invitation{}, fmt.Errorf("invite %s to goal %s: %w", addr, goalID, err)
	}
	s.logger.InfoContext(ctx, "Invitation created",
		log.FieldGoalID, goalID, log.FieldInvitationID, inv.ID, log.FieldUserID, u.ID)

	ev := amqp.NewLedgerEvent(amqp.EventInvitationCreated, goalID, u.ID)
	ev.InvitationID = inv.ID
	s.publish(ctx, ev)
	return inv, nil
}

// ListMine returns invitations sent to the signed-in user's email.
func (s *InvitationService) ListMine(ctx context.Context, st *state.AppState) ([]core.Invitation, error) {
	u, err := st.RequireUser()
	if err != nil {
		return nil, err
	}
	addr, err := core.NormalizeEmail(u.Email)
	if err != nil {
		return nil, err
	}
	invs, err := s.backend.ListInvitationsForEmail(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	st.SetInvitations(invs)
	return invs, nil
}

// ListForGoal returns every invitation of a goal the user takes part in.
func (s *InvitationService) ListForGoal(ctx context.Context, st *state.AppState, goalID string) ([]core.Invitation, error) {
	u, err := st.RequireUser()
	if err != nil {
		return nil, err
	}
	if _, err := s.memberGoal(ctx, u, goalID); err != nil {
		return nil, err
	}
	invs, err := s.backend.ListInvitationsForGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list invitations of goal %s: %w", goalID, err)
	}
	return invs, nil
}

// Accept joins the user to the invited goal.
func (s *InvitationService) Accept(ctx context.Context, st *state.AppState, invitationID string) (core.Invitation, error) {
	return s.respond(ctx, st, invitationID, core.InvitationAccepted)
}

func (s *InvitationService) Reject(ctx context.Context, st *state.AppState, invitationID string) (core.Invitation, error) {
	return s.respond(ctx, st, invitationID, core.InvitationRejected)
}

func (s *InvitationService) respond(ctx context.Context, st *state.AppState, invitationID string, status core.InvitationStatus) (core.Invitation, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Invitation{}, err
	}
	inv, err := s.backend.GetInvitation(ctx, invitationID)
	if err != nil {
		return core.Invitation{}, err
	}
	if addr, _ := core.NormalizeEmail(u.Email); addr == "" || addr != inv.InvitedEmail {
		return core.Invitation{}, fmt.Errorf("invitation %s is addressed to someone else: %w", invitationID, core.ErrForbidden)
	}
	if _, err := core.TransitionInvitation(inv.Status, status); err != nil {
		return core.Invitation{}, fmt.Errorf("invitation %s is %s: %w", invitationID, inv.Status, err)
	}

	updated, err := s.backend.RespondInvitation(ctx, invitationID, status, u.ID)
	if err != nil {
		return core.Invitation{}, fmt.Errorf("respond to invitation %s: %w", invitationID, err)
	}
	st.PutInvitation(updated)

	evType := amqp.EventInvitationRejected
	if status == core.InvitationAccepted {
		evType = amqp.EventInvitationAccepted
		if g, err := s.backend.GetGoal(ctx, updated.GoalID); err != nil {
			s.logger.WarnContext(ctx, "Failed to refresh joined goal",
				log.FieldGoalID, updated.GoalID, log.FieldError, err)
		} else {
			st.PutGoal(g)
		}
	}
	s.logger.InfoContext(ctx, "Invitation answered",
		log.FieldInvitationID, invitationID, log.FieldGoalID, updated.GoalID, "status", updated.Status)

	ev := amqp.NewLedgerEvent(evType, updated.GoalID, u.ID)
	ev.InvitationID = updated.ID
	s.publish(ctx, ev)
	return updated, nil
}
