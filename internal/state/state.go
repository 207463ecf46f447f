// Package state holds the per-user working set: the signed-in user and the
// goals, invitations, proofs, drawn slots and participants fetched for them.
// The backend stays the source of truth; this is a mirror refreshed by
// re-fetching and mutated only after a backend call succeeds.
package state

import (
	"slices"
	"sort"
	"sync"

	"metas/internal/core"
)

// AppState is safe for concurrent use. Readers get copies.
type AppState struct {
	mu           sync.RWMutex
	user         *core.User
	goals        []core.Goal
	invitations  []core.Invitation
	proofs       map[string][]core.Proof
	available    map[string][]int
	participants map[string][]string
}

func New() *AppState {
	s := &AppState{}
	s.reset()
	return s
}

func (s *AppState) reset() {
	s.user = nil
	s.goals = nil
	s.invitations = nil
	s.proofs = make(map[string][]core.Proof)
	s.available = make(map[string][]int)
	s.participants = make(map[string][]string)
}

// SignIn replaces the whole state with a fresh working set for u.
func (s *AppState) SignIn(u core.User, goals []core.Goal, invitations []core.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	user := u
	s.user = &user
	s.goals = cloneGoals(goals)
	s.invitations = slices.Clone(invitations)
	for _, g := range goals {
		s.participants[g.ID] = slices.Clone(g.Participants)
	}
}

// SignOut drops everything.
func (s *AppState) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *AppState) User() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

// RequireUser returns the signed-in user or core.ErrNotAuthenticated.
func (s *AppState) RequireUser() (core.User, error) {
	u, ok := s.User()
	if !ok {
		return core.User{}, core.ErrNotAuthenticated
	}
	return u, nil
}

// SetUser updates the profile of the signed-in user.
func (s *AppState) SetUser(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := u
	s.user = &user
}

func (s *AppState) Goals() []core.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGoals(s.goals)
}

func (s *AppState) Goal(goalID string) (core.Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.goals {
		if g.ID == goalID {
			return g.Clone(), true
		}
	}
	return core.Goal{}, false
}

func (s *AppState) SetGoals(goals []core.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = cloneGoals(goals)
	for _, g := range goals {
		s.participants[g.ID] = slices.Clone(g.Participants)
	}
}

// PutGoal inserts or replaces a goal.
func (s *AppState) PutGoal(g core.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[g.ID] = slices.Clone(g.Participants)
	for i := range s.goals {
		if s.goals[i].ID == g.ID {
			s.goals[i] = g.Clone()
			return
		}
	}
	s.goals = append(s.goals, g.Clone())
}

// RemoveGoal forgets a goal and everything cached under it.
func (s *AppState) RemoveGoal(goalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = slices.DeleteFunc(s.goals, func(g core.Goal) bool { return g.ID == goalID })
	s.invitations = slices.DeleteFunc(s.invitations, func(inv core.Invitation) bool { return inv.GoalID == goalID })
	delete(s.proofs, goalID)
	delete(s.available, goalID)
	delete(s.participants, goalID)
}

func (s *AppState) Invitations() []core.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.invitations)
}

func (s *AppState) SetInvitations(invs []core.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations = slices.Clone(invs)
}

// PutInvitation inserts or replaces an invitation.
func (s *AppState) PutInvitation(inv core.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invitations {
		if s.invitations[i].ID == inv.ID {
			s.invitations[i] = inv
			return
		}
	}
	s.invitations = append(s.invitations, inv)
}

func (s *AppState) Proofs(goalID string) []core.Proof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.proofs[goalID])
}

func (s *AppState) SetProofs(goalID string, proofs []core.Proof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs[goalID] = slices.Clone(proofs)
}

// PutProof inserts or replaces a proof in its goal's ledger.
func (s *AppState) PutProof(p core.Proof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.proofs[p.GoalID]
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return
		}
	}
	s.proofs[p.GoalID] = append(list, p)
}

// Available returns the slots drawn for the user on goalID and not yet used.
func (s *AppState) Available(goalID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.available[goalID])
}

func (s *AppState) SetAvailable(goalID string, slots []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(slots)
	sort.Ints(out)
	s.available[goalID] = slices.Compact(out)
}

// AddAvailable merges slots into the goal's drawn pool.
func (s *AppState) AddAvailable(goalID string, slots []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append(slices.Clone(s.available[goalID]), slots...)
	sort.Ints(out)
	s.available[goalID] = slices.Compact(out)
}

// RemoveAvailable drops slot from the goal's drawn pool. Absent slots are
// ignored.
func (s *AppState) RemoveAvailable(goalID string, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[goalID] = slices.DeleteFunc(s.available[goalID], func(v int) bool { return v == slot })
}

// Claimed is the locally known set of slots out of the pool: live proofs
// plus drawn slots.
func (s *AppState) Claimed(goalID string) map[int]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.ClaimedSlots(s.proofs[goalID], s.available[goalID])
}

func (s *AppState) Participants(goalID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.participants[goalID])
}

func cloneGoals(in []core.Goal) []core.Goal {
	if in == nil {
		return nil
	}
	out := make([]core.Goal, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}
