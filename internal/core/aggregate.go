package core

import (
	"sort"
)

// Aggregate summarises a goal's ledger. Only approved proofs count towards
// VerifiedTotal and VerifiedSlots.
type Aggregate struct {
	VerifiedTotal Money `json:"verified_total"`
	VerifiedSlots []int `json:"verified_slots"`
	PendingCount  int   `json:"pending_count"`
}

// AggregateProofs folds a goal's proofs into an Aggregate.
func AggregateProofs(proofs []Proof) Aggregate {
	agg := Aggregate{VerifiedSlots: []int{}}
	for _, p := range proofs {
		switch p.Decision {
		case DecisionApproved:
			agg.VerifiedTotal.Cents += p.Amount().Cents
			agg.VerifiedSlots = append(agg.VerifiedSlots, p.Slot)
		case DecisionPending:
			agg.PendingCount++
		}
	}
	sort.Ints(agg.VerifiedSlots)
	return agg
}

// ProgressPercentage returns verified/target*100 clamped to [0, 100]. A
// non-positive target yields 0.
func ProgressPercentage(verified, target Money) float64 {
	if target.Cents <= 0 || verified.Cents <= 0 {
		return 0
	}
	pct := float64(verified.Cents) / float64(target.Cents) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// IsReached reports whether the verified total meets the target.
func IsReached(verified, target Money) bool {
	return target.Cents > 0 && verified.Cents >= target.Cents
}

// RemainingSplitPerParticipant divides what is left of target evenly,
// flooring to the cent. No participants or nothing left yields zero.
func RemainingSplitPerParticipant(target, verified Money, participants int) Money {
	if participants <= 0 {
		return Money{}
	}
	left := target.Cents - verified.Cents
	if left <= 0 {
		return Money{}
	}
	return Money{Cents: left / int64(participants)}
}

// Standing is one participant's place in a goal ranking.
type Standing struct {
	UserID     string  `json:"user_id"`
	Total      Money   `json:"total"`
	Slots      []int   `json:"slots"`
	Percentage float64 `json:"percentage"`
}

// RankParticipants sums approved deposits per participant and orders them
// by total, highest first. Ties keep participant order. Proofs from users
// outside participants are ignored.
func RankParticipants(proofs []Proof, participants []string, target Money) []Standing {
	idx := make(map[string]int, len(participants))
	out := make([]Standing, 0, len(participants))
	for _, id := range participants {
		if _, dup := idx[id]; dup {
			continue
		}
		idx[id] = len(out)
		out = append(out, Standing{UserID: id, Slots: []int{}})
	}
	for _, p := range proofs {
		if p.Decision != DecisionApproved {
			continue
		}
		i, ok := idx[p.UserID]
		if !ok {
			continue
		}
		out[i].Total.Cents += p.Amount().Cents
		out[i].Slots = append(out[i].Slots, p.Slot)
	}
	for i := range out {
		sort.Ints(out[i].Slots)
		out[i].Percentage = ProgressPercentage(out[i].Total, target)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Total.Cents > out[b].Total.Cents
	})
	return out
}
