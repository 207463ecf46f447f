package services

import (
	"context"
	"fmt"

	"metas/internal/backend"
	"metas/internal/core"
	"metas/internal/metrics"
)

// LedgerReader is the slice of the backend completion needs.
type LedgerReader interface {
	GetGoal(ctx context.Context, goalID string) (core.Goal, error)
	ListProofs(ctx context.Context, goalID string) ([]core.Proof, error)
	UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
}

var _ LedgerReader = (backend.Backend)(nil)

// CompleteIfReached moves an active goal to completed once its approved
// deposits cover the target and returns the goal as stored. Goals that are
// paused, already completed or short of the target come back unchanged.
func CompleteIfReached(ctx context.Context, b LedgerReader, goalID string) (core.Goal, error) {
	g, err := b.GetGoal(ctx, goalID)
	if err != nil {
		return core.Goal{}, err
	}
	if g.Status != core.GoalActive {
		return g, nil
	}
	proofs, err := b.ListProofs(ctx, goalID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("list proofs of goal %s: %w", goalID, err)
	}
	agg := core.AggregateProofs(proofs)
	if !core.IsReached(agg.VerifiedTotal, g.TargetAmount) {
		return g, nil
	}
	next, err := core.TransitionGoal(g.Status, core.GoalCompleted)
	if err != nil {
		return core.Goal{}, err
	}
	g.Status = next
	updated, err := b.UpdateGoal(ctx, g)
	if err != nil {
		return core.Goal{}, fmt.Errorf("complete goal %s: %w", goalID, err)
	}
	metrics.GoalsCompleted.Inc()
	return updated, nil
}
