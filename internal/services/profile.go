package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/state"
)

// drawnFetchLimit bounds the concurrent DrawnSlots calls made on sign-in.
const drawnFetchLimit = 4

// ProfileService owns the sign-in lifecycle and the user's profile.
type ProfileService struct {
	*base
}

// SignIn upserts u and loads their working set into st. st is replaced in
// one step once everything was fetched.
func (s *ProfileService) SignIn(ctx context.Context, st *state.AppState, u core.User) (core.User, error) {
	if strings.TrimSpace(u.ID) == "" {
		return core.User{}, core.ErrNotAuthenticated
	}
	if u.Email != "" {
		addr, err := core.NormalizeEmail(u.Email)
		if err != nil {
			return core.User{}, err
		}
		u.Email = addr
	}
	user, err := s.backend.UpsertUser(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", err)
	}

	var (
		goals []core.Goal
		invs  []core.Invitation
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		goals, err = s.backend.ListGoals(gctx, user.ID)
		return err
	})
	eg.Go(func() error {
		if user.Email == "" {
			invs = []core.Invitation{}
			return nil
		}
		var err error
		invs, err = s.backend.ListInvitationsForEmail(gctx, user.Email)
		return err
	})
	if err := eg.Wait(); err != nil {
		return core.User{}, fmt.Errorf("load working set: %w", err)
	}

	drawn := make([][]int, len(goals))
	eg, gctx = errgroup.WithContext(ctx)
	eg.SetLimit(drawnFetchLimit)
	for i, g := range goals {
		eg.Go(func() error {
			slots, err := s.backend.DrawnSlots(gctx, g.ID, user.ID)
			if err != nil {
				return err
			}
			drawn[i] = slots
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return core.User{}, fmt.Errorf("load drawn slots: %w", err)
	}

	st.SignIn(user, goals, invs)
	for i, g := range goals {
		st.SetAvailable(g.ID, drawn[i])
	}
	s.logger.InfoContext(ctx, "User signed in",
		log.FieldUserID, user.ID, "goals", len(goals), "invitations", len(invs))
	return user, nil
}

// SignOut clears st.
func (s *ProfileService) SignOut(ctx context.Context, st *state.AppState) {
	if u, ok := st.User(); ok {
		s.logger.InfoContext(ctx, "User signed out", log.FieldUserID, u.ID)
	}
	st.SignOut()
}

// UpdatePayoutKey stores the digits of key as the user's default payout
// key for new goals.
func (s *ProfileService) UpdatePayoutKey(ctx context.Context, st *state.AppState, key string) (core.User, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.User{}, err
	}
	digits := core.DigitsOnly(key)
	switch {
	case digits == "":
		return core.User{}, &core.ValidationError{Fields: map[string]string{"payout_key": "must contain digits"}}
	case len(digits) > core.MaxPayoutKeyLength:
		return core.User{}, &core.ValidationError{Fields: map[string]string{"payout_key": "too long"}}
	}
	updated, err := s.backend.UpdatePayoutKey(ctx, u.ID, digits)
	if err != nil {
		return core.User{}, fmt.Errorf("update payout key: %w", err)
	}
	st.SetUser(updated)
	return updated, nil
}
