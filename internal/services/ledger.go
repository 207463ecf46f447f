package services

import (
	"context"
	"fmt"

	"metas/internal/amqp"
	"metas/internal/core"
	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/state"
)

// LedgerService records payment proofs and their verification.
type LedgerService struct {
	*base
	pool *PoolService
}

// SubmitProof stores a pending proof for up.Slot. Slot zero draws a fresh
// slot first. up.UserID is taken from the signed-in user.
func (s *LedgerService) SubmitProof(ctx context.Context, st *state.AppState, up core.ProofUpload) (core.Proof, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Proof{}, err
	}
	g, err := s.memberGoal(ctx, u, up.GoalID)
	if err != nil {
		return core.Proof{}, err
	}
	if up.Slot == 0 {
		slots, err := s.pool.RequestSlots(ctx, st, up.GoalID, 1)
		if err != nil {
			return core.Proof{}, err
		}
		up.Slot = slots[0]
	}
	if !g.ValidSlot(up.Slot) {
		return core.Proof{}, fmt.Errorf("slot %d outside 1..%d: %w", up.Slot, g.SlotCount, core.ErrInvalidInput)
	}
	up.UserID = u.ID

	p, err := s.backend.SubmitProof(ctx, up)
	if err != nil {
		return core.Proof{}, fmt.Errorf("submit proof for slot %d: %w", up.Slot, err)
	}

	st.RemoveAvailable(p.GoalID, p.Slot)
	st.PutProof(p)
	metrics.ProofsSubmitted.Inc()
	s.structured.LogProofSubmitted(ctx, p.GoalID, u.ID, p.ID, p.Slot)

	ev := amqp.NewLedgerEvent(amqp.EventProofSubmitted, p.GoalID, u.ID)
	ev.ProofID, ev.Slot = p.ID, p.Slot
	s.publish(ctx, ev)
	return p, nil
}

// DecideProof approves or rejects a pending proof. Only the goal owner may
// decide and a decision is final. An approval that brings the verified
// total to the target completes the goal.
func (s *LedgerService) DecideProof(ctx context.Context, st *state.AppState, proofID string, approve bool) (core.Proof, error) {
	u, err := st.RequireUser()
	if err != nil {
		return core.Proof{}, err
	}
	p, err := s.backend.GetProof(ctx, proofID)
	if err != nil {
		return core.Proof{}, err
	}
	g, err := s.ownedGoal(ctx, u, p.GoalID)
	if err != nil {
		return core.Proof{}, err
	}
	if p.Decision != core.DecisionPending {
		return core.Proof{}, fmt.Errorf("proof %s is %s: %w", p.ID, p.Decision, core.ErrAlreadyDecided)
	}

	decided, err := s.backend.DecideProof(ctx, proofID, approve, u.ID)
	if err != nil {
		return core.Proof{}, fmt.Errorf("decide proof %s: %w", proofID, err)
	}
	st.PutProof(decided)
	metrics.ProofsDecided.WithLabelValues(string(decided.Decision)).Inc()
	s.structured.LogProofDecided(ctx, g.ID, u.ID, decided.ID, decided.Slot, string(decided.Decision))

	if approve {
		if completed, err := CompleteIfReached(ctx, s.backend, g.ID); err != nil {
			// The decision is stored; the scheduled reconcile retries completion.
			s.logger.ErrorContext(ctx, "Failed to complete goal after approval",
				log.FieldGoalID, g.ID, log.FieldError, err)
		} else {
			st.PutGoal(completed)
		}
	}

	ev := amqp.NewLedgerEvent(amqp.EventProofDecided, decided.GoalID, u.ID)
	ev.ProofID, ev.Slot, ev.Decision = decided.ID, decided.Slot, string(decided.Decision)
	s.publish(ctx, ev)
	return decided, nil
}

// AggregateForGoal refreshes the cached ledger of goalID and folds it.
func (s *LedgerService) AggregateForGoal(ctx context.Context, st *state.AppState, goalID string) (core.Aggregate, error) {
	proofs, err := s.ListProofs(ctx, st, goalID)
	if err != nil {
		return core.Aggregate{}, err
	}
	return core.AggregateProofs(proofs), nil
}

// ListProofs fetches the proofs of goalID and replaces the cached ledger.
func (s *LedgerService) ListProofs(ctx context.Context, st *state.AppState, goalID string) ([]core.Proof, error) {
	u, err := st.RequireUser()
	if err != nil {
		return nil, err
	}
	g, err := s.memberGoal(ctx, u, goalID)
	if err != nil {
		return nil, err
	}
	proofs, err := s.backend.ListProofs(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list proofs of goal %s: %w", goalID, err)
	}
	st.PutGoal(g)
	st.SetProofs(goalID, proofs)
	return proofs, nil
}
