package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"metas/internal/core"
	"metas/internal/draw"
	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/state"
)

// PoolService hands out deposit slots. The backend allocator decides which
// slots a user gets; the service checks the reply and mirrors it locally.
type PoolService struct {
	*base
	rng    *rand.Rand
	frames int
}

// RequestSlots asks the allocator for up to count slots of goalID. The
// goal's ledger is refetched first so slots released by a rejection are not
// mistaken for collisions. A reply that still collides with the state is a
// conflict and is not cached. An empty reply means the pool is exhausted.
func (s *PoolService) RequestSlots(ctx context.Context, st *state.AppState, goalID string, count int) ([]int, error) {
	u, err := st.RequireUser()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("slot count %d: %w", count, core.ErrInvalidInput)
	}
	g, err := s.memberGoal(ctx, u, goalID)
	if err != nil {
		return nil, err
	}

	proofs, err := s.backend.ListProofs(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("list proofs of goal %s: %w", goalID, err)
	}
	st.SetProofs(goalID, proofs)

	slots, err := s.backend.AllocateSlots(ctx, goalID, u.ID, count)
	if err != nil {
		return nil, fmt.Errorf("allocate slots for goal %s: %w", goalID, err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("goal %s: %w", goalID, core.ErrExhaustedPool)
	}
	if err := core.ValidateAllocation(g.SlotCount, slots, st.Claimed(goalID)); err != nil {
		s.logger.WarnContext(ctx, "Allocator reply collides with cached pool",
			log.FieldGoalID, goalID, log.FieldSlots, slots, log.FieldError, err)
		return nil, err
	}

	st.PutGoal(g)
	st.AddAvailable(goalID, slots)
	metrics.SlotsDrawn.Add(float64(len(slots)))
	s.structured.LogSlotsDrawn(ctx, goalID, u.ID, slots)
	return slots, nil
}

// ReleaseOrConsumeSlot marks slot as used at the backend and drops it from
// the cached pool. Repeating it is harmless.
func (s *PoolService) ReleaseOrConsumeSlot(ctx context.Context, st *state.AppState, goalID string, slot int) error {
	u, err := st.RequireUser()
	if err != nil {
		return err
	}
	if err := s.backend.ConsumeSlot(ctx, goalID, u.ID, slot); err != nil {
		return fmt.Errorf("consume slot %d of goal %s: %w", slot, goalID, err)
	}
	st.RemoveAvailable(goalID, slot)
	return nil
}

// Draw is one drawn slot plus the values the roulette shows before landing
// on it.
type Draw struct {
	Slot   int   `json:"slot"`
	Frames []int `json:"frames"`
}

// DrawSlot requests a single slot and builds the spin around it.
func (s *PoolService) DrawSlot(ctx context.Context, st *state.AppState, goalID string) (Draw, error) {
	slots, err := s.RequestSlots(ctx, st, goalID, 1)
	if err != nil {
		return Draw{}, err
	}
	upper := slots[0]
	if g, ok := st.Goal(goalID); ok {
		upper = g.SlotCount
	}
	return Draw{
		Slot:   slots[0],
		Frames: draw.Spin(slots[0], upper, s.frames, s.rng),
	}, nil
}
