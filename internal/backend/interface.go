package backend

import (
	"context"

	"metas/internal/core"
)

// GoalStore persists goals and their participant lists.
type GoalStore interface {
	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	GetGoal(ctx context.Context, goalID string) (core.Goal, error)
	// ListGoals returns goals the user owns or takes part in.
	ListGoals(ctx context.Context, userID string) ([]core.Goal, error)
	ListGoalsByStatus(ctx context.Context, status core.GoalStatus) ([]core.Goal, error)
	UpdateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	// DeleteGoal removes the goal with its proofs, claims and invitations.
	// It fails with core.ErrConflict when any proof was approved.
	DeleteGoal(ctx context.Context, goalID string) error
}

// SlotAllocator is the authoritative owner of slot claims.
type SlotAllocator interface {
	// AllocateSlots claims up to count free slots for the user and returns
	// them. An empty result means the pool is exhausted.
	AllocateSlots(ctx context.Context, goalID, userID string, count int) ([]int, error)
	// ConsumeSlot marks the user's claim on slot as used. Repeating it is a
	// no-op; a slot held by someone else is a conflict.
	ConsumeSlot(ctx context.Context, goalID, userID string, slot int) error
	// DrawnSlots lists the user's claims that are neither consumed nor tied
	// to a proof.
	DrawnSlots(ctx context.Context, goalID, userID string) ([]int, error)
}

// ProofStore is the proof ledger.
type ProofStore interface {
	SubmitProof(ctx context.Context, up core.ProofUpload) (core.Proof, error)
	GetProof(ctx context.Context, proofID string) (core.Proof, error)
	ListProofs(ctx context.Context, goalID string) ([]core.Proof, error)
	// DecideProof records a terminal decision. Rejection frees the slot.
	DecideProof(ctx context.Context, proofID string, approve bool, verifierID string) (core.Proof, error)
}

// InvitationStore persists goal invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error)
	GetInvitation(ctx context.Context, invitationID string) (core.Invitation, error)
	ListInvitationsForEmail(ctx context.Context, email string) ([]core.Invitation, error)
	ListInvitationsForGoal(ctx context.Context, goalID string) ([]core.Invitation, error)
	// RespondInvitation moves a pending invitation to accepted or rejected.
	// Accepting adds userID to the goal's participants and flags it as a
	// group goal in the same step.
	RespondInvitation(ctx context.Context, invitationID string, status core.InvitationStatus, userID string) (core.Invitation, error)
}

// UserStore keeps user profiles.
type UserStore interface {
	// UpsertUser creates the user or refreshes the email. A stored payout
	// key survives an upsert with an empty one.
	UpsertUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, userID string) (core.User, error)
	UpdatePayoutKey(ctx context.Context, userID, key string) (core.User, error)
}

// Backend is the full data collaborator.
type Backend interface {
	GoalStore
	SlotAllocator
	ProofStore
	InvitationStore
	UserStore
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath  string
	UploadDir     string
	PublicBaseURL string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
