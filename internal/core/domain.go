package core

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength     = 120
	MaxSlotCount       = 10000
	MaxPayoutKeyLength = 77
)

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

func (s GoalStatus) IsValid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalPaused:
		return true
	}
	return false
}

// Decision is the verification outcome of a proof.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected:
		return true
	}
	return false
}

// DecisionFor maps an owner's approve/reject choice to a Decision.
func DecisionFor(approve bool) Decision {
	if approve {
		return DecisionApproved
	}
	return DecisionRejected
}

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationRejected:
		return true
	}
	return false
}

// User is the signed-in principal. Email is used to match invitations.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	PayoutKey string `json:"payout_key,omitempty"`
}

// Goal is a savings target split into SlotCount deposit slots.
type Goal struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TargetAmount Money      `json:"target_amount"`
	SlotCount    int        `json:"slot_count"`
	OwnerID      string     `json:"owner_id"`
	IsGroup      bool       `json:"is_group"`
	Participants []string   `json:"participants"`
	PayoutKey    string     `json:"payout_key,omitempty"`
	Status       GoalStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (g Goal) IsOwner(userID string) bool {
	return userID != "" && g.OwnerID == userID
}

// HasParticipant reports whether userID owns or takes part in the goal.
func (g Goal) HasParticipant(userID string) bool {
	if g.IsOwner(userID) {
		return true
	}
	for _, p := range g.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with g.
func (g Goal) Clone() Goal {
	g.Participants = append([]string(nil), g.Participants...)
	return g
}

// ValidSlot reports whether slot lies in [1, SlotCount].
func (g Goal) ValidSlot(slot int) bool {
	return slot >= 1 && slot <= g.SlotCount
}

// Proof links a user, a goal and one slot with a verification decision.
type Proof struct {
	ID         string     `json:"id"`
	GoalID     string     `json:"goal_id"`
	UserID     string     `json:"user_id"`
	FileRef    string     `json:"file_ref"`
	Slot       int        `json:"slot"`
	Decision   Decision   `json:"decision"`
	VerifiedBy string     `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Amount is the deposit the proof stands for.
func (p Proof) Amount() Money { return SlotAmount(p.Slot) }

// HoldsSlot reports whether the proof keeps its slot out of the pool.
func (p Proof) HoldsSlot() bool { return p.Decision != DecisionRejected }

// Invitation asks the holder of InvitedEmail to join a goal.
type Invitation struct {
	ID           string           `json:"id"`
	GoalID       string           `json:"goal_id"`
	GoalTitle    string           `json:"goal_title,omitempty"`
	InvitedBy    string           `json:"invited_by"`
	InvitedEmail string           `json:"invited_email"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// GoalInput carries the fields a user supplies when creating a goal.
// A zero TargetAmount means the triangular total of SlotCount.
type GoalInput struct {
	Title        string
	SlotCount    int
	TargetAmount Money
	IsGroup      bool
	PayoutKey    string
}

// Validate checks every field and reports all problems together.
func (in GoalInput) Validate() error {
	v := &ValidationError{}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		v.add("title", "required")
	} else if utf8.RuneCountInString(title) > MaxTitleLength {
		v.add("title", "too long")
	}
	if in.SlotCount <= 0 {
		v.add("slot_count", "must be positive")
	} else if in.SlotCount > MaxSlotCount {
		v.add("slot_count", "too large")
	}
	if in.TargetAmount.Cents < 0 {
		v.add("target_amount", "must not be negative")
	}
	if len(in.PayoutKey) > MaxPayoutKeyLength {
		v.add("payout_key", "too long")
	}
	return v.orNil()
}

// Resolve fills whichever of SlotCount and TargetAmount is missing. A target
// given without a slot count is first rounded up to whole slot units.
func (in GoalInput) Resolve() GoalInput {
	switch {
	case in.SlotCount == 0 && in.TargetAmount.Cents > 0:
		in.TargetAmount = Money{Cents: RoundToNearest(in.TargetAmount.Cents, SlotUnit)}
		in.SlotCount = SlotCountForTarget(in.TargetAmount)
	case in.TargetAmount.Cents == 0 && in.SlotCount > 0:
		in.TargetAmount = TargetForSlots(in.SlotCount)
	}
	return in
}

// GoalPatch holds optional goal updates; nil fields are left unchanged.
type GoalPatch struct {
	Title        *string
	Status       *GoalStatus
	PayoutKey    *string
	TargetAmount *Money
}

func (p GoalPatch) Validate() error {
	v := &ValidationError{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			v.add("title", "required")
		} else if utf8.RuneCountInString(t) > MaxTitleLength {
			v.add("title", "too long")
		}
	}
	if p.Status != nil && !p.Status.IsValid() {
		v.add("status", "unknown status")
	}
	if p.PayoutKey != nil && len(*p.PayoutKey) > MaxPayoutKeyLength {
		v.add("payout_key", "too long")
	}
	if p.TargetAmount != nil && p.TargetAmount.Cents <= 0 {
		v.add("target_amount", "must be positive")
	}
	return v.orNil()
}

// Apply returns g with the patch applied. Status changes go through
// TransitionGoal. A goal only becomes completed when its approved deposits
// reach the target, never by request.
func (p GoalPatch) Apply(g Goal) (Goal, error) {
	out := g.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.PayoutKey != nil {
		out.PayoutKey = *p.PayoutKey
	}
	if p.TargetAmount != nil {
		out.TargetAmount = *p.TargetAmount
	}
	if p.Status != nil && *p.Status != g.Status {
		if *p.Status == GoalCompleted {
			return g, fmt.Errorf("goal completes when its deposits reach the target: %w", ErrConflict)
		}
		next, err := TransitionGoal(g.Status, *p.Status)
		if err != nil {
			return g, err
		}
		out.Status = next
	}
	return out, nil
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolvePayoutKey picks the payout key for a new goal: the digits of the
// supplied key, else the user's stored key, else the user ID.
func ResolvePayoutKey(input string, u User) string {
	if k := DigitsOnly(input); k != "" {
		return k
	}
	if k := DigitsOnly(u.PayoutKey); k != "" {
		return k
	}
	return u.ID
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &ValidationError{Fields: map[string]string{"email": "required"}}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &ValidationError{Fields: map[string]string{"email": "malformed"}}
	}
	return email, nil
}

// TransitionGoal validates a goal status change. Completed is terminal;
// active and paused may switch freely.
func TransitionGoal(from, to GoalStatus) (GoalStatus, error) {
	if !to.IsValid() {
		return from, ErrInvalidInput
	}
	if from == to {
		return to, nil
	}
	switch from {
	case GoalActive:
		return to, nil
	case GoalPaused:
		if to == GoalActive {
			return to, nil
		}
	}
	return from, ErrConflict
}

// DecideProof returns p with the decision recorded. Only pending proofs can
// be decided.
func DecideProof(p Proof, approve bool, verifierID string, at time.Time) (Proof, error) {
	if p.Decision != DecisionPending {
		return p, ErrAlreadyDecided
	}
	p.Decision = DecisionFor(approve)
	p.VerifiedBy = verifierID
	t := at.UTC()
	p.VerifiedAt = &t
	return p, nil
}

// TransitionInvitation moves a pending invitation to accepted or rejected.
func TransitionInvitation(from, to InvitationStatus) (InvitationStatus, error) {
	if from != InvitationPending {
		return from, ErrConflict
	}
	if to != InvitationAccepted && to != InvitationRejected {
		return from, ErrInvalidInput
	}
	return to, nil
}

// ProofUpload is a proof file submitted for a slot. Body is read once by the
// backend that stores it.
type ProofUpload struct {
	GoalID      string
	UserID      string
	Slot        int
	FileName    string
	ContentType string
	Body        io.Reader
}
