// Package sheets defines the outbound port that mirrors approved deposits
// into a spreadsheet for owners who keep their books there.
package sheets

import (
	"context"
	"time"

	"metas/internal/core"
)

// Deposit is one approved proof as it appears in the mirror.
type Deposit struct {
	GoalID     string
	GoalTitle  string
	ProofID    string
	UserID     string
	Slot       int
	Amount     core.Money
	VerifiedAt time.Time
}

// DepositFromProof builds the mirror row for an approved proof of g.
func DepositFromProof(g core.Goal, p core.Proof) Deposit {
	d := Deposit{
		GoalID:    g.ID,
		GoalTitle: g.Title,
		ProofID:   p.ID,
		UserID:    p.UserID,
		Slot:      p.Slot,
		Amount:    p.Amount(),
	}
	if p.VerifiedAt != nil {
		d.VerifiedAt = *p.VerifiedAt
	}
	return d
}

// LedgerMirror appends deposits somewhere outside the backend. Delivery is
// at least once; a redelivered event can produce a second row.
type LedgerMirror interface {
	AppendDeposit(ctx context.Context, d Deposit) (rowRef string, err error)
}
