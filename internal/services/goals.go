package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"metas/internal/amqp"
	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/state"
)

// GoalService manages goals and derives their progress.
type GoalService struct {
	*base
}

// Create stores a new goal owned by the signed-in user. A zero target
// becomes the triangular total of the slot count; a zero slot count is
// derived from the target.
func (s *GoalService) Create(ctx context.Context, st *state.AppState, in core.GoalInput) (core.Goal, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Goal{}, err
	}
	in = in.Resolve()
	if err := in.Validate(); err != nil {
		return core.Goal{}, err
	}
	g, err := s.backend.CreateGoal(ctx, core.Goal{
		Title:        in.Title,
		TargetAmount: in.TargetAmount,
		SlotCount:    in.SlotCount,
		OwnerID:      u.ID,
		IsGroup:      in.IsGroup,
		Participants: []string{u.ID},
		PayoutKey:    core.ResolvePayoutKey(in.PayoutKey, u),
		Status:       core.GoalActive,
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}
	st.PutGoal(g)
	s.logger.InfoContext(ctx, "Goal created",
		log.FieldGoalID, g.ID, log.FieldUserID, u.ID, log.FieldAmountCents, g.TargetAmount.Cents)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventGoalCreated, g.ID, u.ID))
	return g, nil
}

// List returns the goals the user owns or takes part in.
func (s *GoalService) List(ctx context.Context, st *state.AppState) ([]core.Goal, error) {
	u, err := st.RequireUser()
	if err != nil {
		return nil, err
	}
	goals, err := s.backend.ListGoals(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	st.SetGoals(goals)
	return goals, nil
}

func (s *GoalService) Get(ctx context.Context, st *state.AppState, goalID string) (core.Goal, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Goal{}, err
	}
	g, err := s.memberGoal(ctx, u, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	st.PutGoal(g)
	return g, nil
}

// Update applies patch to a goal the user owns. A target lowered to what
// the approved deposits already cover completes the goal.
func (s *GoalService) Update(ctx context.Context, st *state.AppState, goalID string, patch core.GoalPatch) (core.Goal, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Goal{}, err
	}
	if err := patch.Validate(); err != nil {
		return core.Goal{}, err
	}
	g, err := s.ownedGoal(ctx, u, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	next, err := patch.Apply(g)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal %s: %w", goalID, err)
	}
	updated, err := s.backend.UpdateGoal(ctx, next)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal %s: %w", goalID, err)
	}
	if patch.TargetAmount != nil {
		if completed, err := CompleteIfReached(ctx, s.backend, goalID); err != nil {
			// The update is stored; the scheduled reconcile retries completion.
			s.logger.ErrorContext(ctx, "Failed to complete goal after target change",
				log.FieldGoalID, goalID, log.FieldError, err)
		} else {
			updated = completed
		}
	}
	st.PutGoal(updated)
	return updated, nil
}

// Delete removes a goal the user owns. Goals with approved deposits stay.
func (s *GoalService) Delete(ctx context.Context, st *state.AppState, goalID string) error {
	u, err := st.RequireUser()
	if err != nil {
		return err
	}
	if _, err := s.ownedGoal(ctx, u, goalID); err != nil {
		return err
	}
	if err := s.backend.DeleteGoal(ctx, goalID); err != nil {
		return fmt.Errorf("delete goal %s: %w", goalID, err)
	}
	st.RemoveGoal(goalID)
	s.logger.InfoContext(ctx, "Goal deleted", log.FieldGoalID, goalID, log.FieldUserID, u.ID)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventGoalDeleted, goalID, u.ID))
	return nil
}

// Participants returns the goal's participant IDs, owner first.
func (s *GoalService) Participants(ctx context.Context, st *state.AppState, goalID string) ([]string, error) {
	g, err := s.Get(ctx, st, goalID)
	if err != nil {
		return nil, err
	}
	return g.Participants, nil
}

// Progress is the read model behind a goal's detail view.
type Progress struct {
	Goal                    core.Goal       `json:"goal"`
	Aggregate               core.Aggregate  `json:"aggregate"`
	Percentage              float64         `json:"percentage"`
	Reached                 bool            `json:"reached"`
	Ranking                 []core.Standing `json:"ranking"`
	RemainingPerParticipant core.Money      `json:"remaining_per_participant"`
	Available               []int           `json:"available"`
}

// Progress fetches the goal and its ledger together and derives totals,
// ranking and the per-participant split of what is left.
func (s *GoalService) Progress(ctx context.Context, st *state.AppState, goalID string) (Progress, error) {
	u, err := st.RequireUser()
	if err != nil {
		return Progress{}, err
	}

	var (
		g      core.Goal
		proofs []core.Proof
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		g, err = s.backend.GetGoal(gctx, goalID)
		return err
	})
	eg.Go(func() error {
		var err error
		proofs, err = s.backend.ListProofs(gctx, goalID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Progress{}, err
	}
	if err := checkMember(g, u.ID); err != nil {
		return Progress{}, err
	}

	st.PutGoal(g)
	st.SetProofs(goalID, proofs)

	agg := core.AggregateProofs(proofs)
	return Progress{
		Goal:                    g,
		Aggregate:               agg,
		Percentage:              core.ProgressPercentage(agg.VerifiedTotal, g.TargetAmount),
		Reached:                 core.IsReached(agg.VerifiedTotal, g.TargetAmount),
		Ranking:                 core.RankParticipants(proofs, g.Participants, g.TargetAmount),
		RemainingPerParticipant: core.RemainingSplitPerParticipant(g.TargetAmount, agg.VerifiedTotal, len(g.Participants)),
		Available:               st.Available(goalID),
	}, nil
}
