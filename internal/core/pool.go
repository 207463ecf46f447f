package core

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// AvailableSlots returns {1..n} minus claimed, ascending.
func AvailableSlots(n int, claimed map[int]bool) []int {
	out := make([]int, 0, n)
	for s := 1; s <= n; s++ {
		if !claimed[s] {
			out = append(out, s)
		}
	}
	return out
}

// PickSlots draws min(k, len(available)) distinct values from available.
// available is not modified. A nil rng uses the global source.
func PickSlots(available []int, k int, rng *rand.Rand) []int {
	if k <= 0 || len(available) == 0 {
		return []int{}
	}
	if k > len(available) {
		k = len(available)
	}
	pool := append([]int(nil), available...)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	picked := pool[:k]
	sort.Ints(picked)
	return picked
}

// ValidateAllocation checks that slots are distinct, inside [1, n] and not
// already claimed. Any violation is a conflict with the allocator.
func ValidateAllocation(n int, slots []int, claimed map[int]bool) error {
	seen := make(map[int]bool, len(slots))
	for _, s := range slots {
		if s < 1 || s > n {
			return fmt.Errorf("slot %d outside 1..%d: %w", s, n, ErrConflict)
		}
		if seen[s] {
			return fmt.Errorf("slot %d returned twice: %w", s, ErrConflict)
		}
		if claimed[s] {
			return fmt.Errorf("slot %d already claimed: %w", s, ErrConflict)
		}
		seen[s] = true
	}
	return nil
}

// ClaimedSlots collects the slots held by non-rejected proofs plus any
// extra drawn slots.
func ClaimedSlots(proofs []Proof, drawn ...[]int) map[int]bool {
	claimed := make(map[int]bool)
	for _, p := range proofs {
		if p.HoldsSlot() && p.Slot > 0 {
			claimed[p.Slot] = true
		}
	}
	for _, d := range drawn {
		for _, s := range d {
			claimed[s] = true
		}
	}
	return claimed
}
