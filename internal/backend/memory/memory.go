// Package memory is an in-process data backend used by tests and by the
// "memory" DATA_BACKEND.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"metas/internal/core"
)

type claimStatus int

const (
	claimDrawn claimStatus = iota
	claimConsumed
)

type claim struct {
	userID string
	status claimStatus
}

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	rng         *rand.Rand
	goals       map[string]core.Goal
	order       []string
	proofs      map[string]core.Proof
	claims      map[string]map[int]claim
	invitations map[string]core.Invitation
	users       map[string]core.User
	files       map[string][]byte
}

// Option customises a Store.
type Option func(*Store)

// WithClock fixes the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand makes slot allocation deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(s *Store) { s.rng = rng }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		goals:       make(map[string]core.Goal),
		proofs:      make(map[string]core.Proof),
		claims:      make(map[string]map[int]claim),
		invitations: make(map[string]core.Invitation),
		users:       make(map[string]core.User),
		files:       make(map[string][]byte),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) stamp() time.Time { return s.now().UTC() }

// CreateGoal stores g under a fresh ID.
func (s *Store) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g = g.Clone()
	g.ID = uuid.NewString()
	now := s.stamp()
	g.CreatedAt, g.UpdatedAt = now, now
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	s.goals[g.ID] = g
	s.order = append(s.order, g.ID)
	return g.Clone(), nil
}

func (s *Store) GetGoal(_ context.Context, goalID string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok {
		return core.Goal{}, fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	return g.Clone(), nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.Goal, error) {
	return s.listGoals(func(g core.Goal) bool { return g.HasParticipant(userID) }), nil
}

func (s *Store) ListGoalsByStatus(_ context.Context, status core.GoalStatus) ([]core.Goal, error) {
	return s.listGoals(func(g core.Goal) bool { return g.Status == status }), nil
}

func (s *Store) listGoals(keep func(core.Goal) bool) []core.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Goal{}
	for _, id := range s.order {
		g, ok := s.goals[id]
		if ok && keep(g) {
			out = append(out, g.Clone())
		}
	}
	return out
}

// UpdateGoal replaces the mutable fields of an existing goal.
func (s *Store) UpdateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok {
		return core.Goal{}, fmt.Errorf("goal %s: %w", g.ID, core.ErrNotFound)
	}
	cur.Title = g.Title
	cur.TargetAmount = g.TargetAmount
	cur.PayoutKey = g.PayoutKey
	cur.Status = g.Status
	cur.UpdatedAt = s.stamp()
	s.goals[g.ID] = cur
	return cur.Clone(), nil
}

func (s *Store) DeleteGoal(_ context.Context, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[goalID]; !ok {
		return fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	for _, p := range s.proofs {
		if p.GoalID == goalID && p.Decision == core.DecisionApproved {
			return fmt.Errorf("goal %s has verified deposits: %w", goalID, core.ErrConflict)
		}
	}
	for id, p := range s.proofs {
		if p.GoalID == goalID {
			delete(s.files, p.FileRef)
			delete(s.proofs, id)
		}
	}
	for id, inv := range s.invitations {
		if inv.GoalID == goalID {
			delete(s.invitations, id)
		}
	}
	delete(s.claims, goalID)
	delete(s.goals, goalID)
	for i, id := range s.order {
		if id == goalID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// claimedLocked returns every slot that is out of the pool. Caller holds mu.
func (s *Store) claimedLocked(goalID string) map[int]bool {
	out := make(map[int]bool)
	for slot := range s.claims[goalID] {
		out[slot] = true
	}
	for _, p := range s.proofs {
		if p.GoalID == goalID && p.HoldsSlot() {
			out[p.Slot] = true
		}
	}
	return out
}

func (s *Store) AllocateSlots(_ context.Context, goalID, userID string, count int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("slot count %d: %w", count, core.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	avail := core.AvailableSlots(g.SlotCount, s.claimedLocked(goalID))
	picked := core.PickSlots(avail, count, s.rng)
	if s.claims[goalID] == nil {
		s.claims[goalID] = make(map[int]claim)
	}
	for _, slot := range picked {
		s.claims[goalID][slot] = claim{userID: userID, status: claimDrawn}
	}
	return picked, nil
}

func (s *Store) ConsumeSlot(_ context.Context, goalID, userID string, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok {
		return fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	if !g.ValidSlot(slot) {
		return fmt.Errorf("slot %d outside 1..%d: %w", slot, g.SlotCount, core.ErrInvalidInput)
	}
	return s.holdLocked(goalID, userID, slot)
}

// holdLocked marks slot consumed for userID, creating the claim when the
// slot is free. Caller holds mu.
func (s *Store) holdLocked(goalID, userID string, slot int) error {
	if c, ok := s.claims[goalID][slot]; ok {
		if c.userID != userID {
			return fmt.Errorf("slot %d held by another participant: %w", slot, core.ErrConflict)
		}
		c.status = claimConsumed
		s.claims[goalID][slot] = c
		return nil
	}
	for _, p := range s.proofs {
		if p.GoalID == goalID && p.Slot == slot && p.HoldsSlot() && p.UserID != userID {
			return fmt.Errorf("slot %d held by another participant: %w", slot, core.ErrConflict)
		}
	}
	if s.claims[goalID] == nil {
		s.claims[goalID] = make(map[int]claim)
	}
	s.claims[goalID][slot] = claim{userID: userID, status: claimConsumed}
	return nil
}

func (s *Store) DrawnSlots(_ context.Context, goalID, userID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[goalID]; !ok {
		return nil, fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	out := []int{}
	for slot, c := range s.claims[goalID] {
		if c.userID == userID && c.status == claimDrawn {
			out = append(out, slot)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *Store) SubmitProof(_ context.Context, up core.ProofUpload) (core.Proof, error) {
	var data []byte
	if up.Body != nil {
		b, err := io.ReadAll(up.Body)
		if err != nil {
			return core.Proof{}, core.Transport("read proof file", err)
		}
		data = b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[up.GoalID]
	if !ok {
		return core.Proof{}, fmt.Errorf("goal %s: %w", up.GoalID, core.ErrNotFound)
	}
	if !g.ValidSlot(up.Slot) {
		return core.Proof{}, fmt.Errorf("slot %d outside 1..%d: %w", up.Slot, g.SlotCount, core.ErrInvalidInput)
	}
	for _, p := range s.proofs {
		if p.GoalID == up.GoalID && p.Slot == up.Slot && p.HoldsSlot() {
			return core.Proof{}, fmt.Errorf("slot %d already has a proof: %w", up.Slot, core.ErrConflict)
		}
	}
	if err := s.holdLocked(up.GoalID, up.UserID, up.Slot); err != nil {
		return core.Proof{}, err
	}
	p := core.Proof{
		ID:        uuid.NewString(),
		GoalID:    up.GoalID,
		UserID:    up.UserID,
		Slot:      up.Slot,
		Decision:  core.DecisionPending,
		CreatedAt: s.stamp(),
	}
	p.FileRef = fmt.Sprintf("mem://%s/%s-%s", up.GoalID, p.ID, up.FileName)
	s.files[p.FileRef] = bytes.Clone(data)
	s.proofs[p.ID] = p
	return p, nil
}

// File returns the bytes stored for a proof file reference.
func (s *Store) File(ref string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[ref]
	return bytes.Clone(b), ok
}

func (s *Store) GetProof(_ context.Context, proofID string) (core.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return core.Proof{}, fmt.Errorf("proof %s: %w", proofID, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProofs(_ context.Context, goalID string) ([]core.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[goalID]; !ok {
		return nil, fmt.Errorf("goal %s: %w", goalID, core.ErrNotFound)
	}
	out := []core.Proof{}
	for _, p := range s.proofs {
		if p.GoalID == goalID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DecideProof(_ context.Context, proofID string, approve bool, verifierID string) (core.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return core.Proof{}, fmt.Errorf("proof %s: %w", proofID, core.ErrNotFound)
	}
	decided, err := core.DecideProof(p, approve, verifierID, s.stamp())
	if err != nil {
		return core.Proof{}, err
	}
	s.proofs[proofID] = decided
	if decided.Decision == core.DecisionRejected {
		delete(s.claims[p.GoalID], p.Slot)
	}
	return decided, nil
}

func (s *Store) CreateInvitation(_ context.Context, inv core.Invitation) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[inv.GoalID]
	if !ok {
		return core.Invitation{}, fmt.Errorf("goal %s: %w", inv.GoalID, core.ErrNotFound)
	}
	for _, cur := range s.invitations {
		if cur.GoalID == inv.GoalID && cur.InvitedEmail == inv.InvitedEmail && cur.Status == core.InvitationPending {
			return core.Invitation{}, fmt.Errorf("invitation for %s already pending: %w", inv.InvitedEmail, core.ErrConflict)
		}
	}
	inv.ID = uuid.NewString()
	inv.Status = core.InvitationPending
	inv.CreatedAt = s.stamp()
	inv.GoalTitle = g.Title
	s.invitations[inv.ID] = inv
	return inv, nil
}

func (s *Store) GetInvitation(_ context.Context, invitationID string) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return core.Invitation{}, fmt.Errorf("invitation %s: %w", invitationID, core.ErrNotFound)
	}
	return s.withTitleLocked(inv), nil
}

func (s *Store) ListInvitationsForEmail(_ context.Context, email string) ([]core.Invitation, error) {
	return s.listInvitations(func(inv core.Invitation) bool { return inv.InvitedEmail == email }), nil
}

func (s *Store) ListInvitationsForGoal(_ context.Context, goalID string) ([]core.Invitation, error) {
	return s.listInvitations(func(inv core.Invitation) bool { return inv.GoalID == goalID }), nil
}

func (s *Store) listInvitations(keep func(core.Invitation) bool) []core.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Invitation{}
	for _, inv := range s.invitations {
		if keep(inv) {
			out = append(out, s.withTitleLocked(inv))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) withTitleLocked(inv core.Invitation) core.Invitation {
	if g, ok := s.goals[inv.GoalID]; ok {
		inv.GoalTitle = g.Title
	}
	return inv
}

func (s *Store) RespondInvitation(_ context.Context, invitationID string, status core.InvitationStatus, userID string) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return core.Invitation{}, fmt.Errorf("invitation %s: %w", invitationID, core.ErrNotFound)
	}
	next, err := core.TransitionInvitation(inv.Status, status)
	if err != nil {
		return core.Invitation{}, err
	}
	if next == core.InvitationAccepted {
		g, ok := s.goals[inv.GoalID]
		if !ok {
			return core.Invitation{}, fmt.Errorf("goal %s: %w", inv.GoalID, core.ErrNotFound)
		}
		if !g.HasParticipant(userID) {
			g.Participants = append(g.Participants, userID)
		}
		g.IsGroup = true
		g.UpdatedAt = s.stamp()
		s.goals[g.ID] = g
	}
	inv.Status = next
	s.invitations[invitationID] = inv
	return s.withTitleLocked(inv), nil
}

func (s *Store) UpsertUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[u.ID]; ok && u.PayoutKey == "" {
		u.PayoutKey = cur.PayoutKey
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) UpdatePayoutKey(_ context.Context, userID, key string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	u.PayoutKey = key
	s.users[userID] = u
	return u, nil
}
