package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger event.
type EventType string

const (
	EventGoalCreated        EventType = "goal.created"
	EventGoalDeleted        EventType = "goal.deleted"
	EventProofSubmitted     EventType = "proof.submitted"
	EventProofDecided       EventType = "proof.decided"
	EventInvitationCreated  EventType = "invitation.created"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventInvitationRejected EventType = "invitation.rejected"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventGoalCreated, EventGoalDeleted, EventProofSubmitted, EventProofDecided,
		EventInvitationCreated, EventInvitationAccepted, EventInvitationRejected:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notice that something changed. Consumers
// fetch the current records from the backend rather than trusting the
// payload.
type LedgerEvent struct {
	Type         EventType `json:"type"`
	GoalID       string    `json:"goal_id"`
	ProofID      string    `json:"proof_id,omitempty"`
	InvitationID string    `json:"invitation_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Slot         int       `json:"slot,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event of the given type for goalID.
func NewLedgerEvent(t EventType, goalID, userID string) LedgerEvent {
	return LedgerEvent{
		Type:      t,
		GoalID:    goalID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return LedgerEvent{}, err
	}
	if !ev.Type.IsValid() {
		return LedgerEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.GoalID == "" {
		return LedgerEvent{}, fmt.Errorf("event %s has no goal id", ev.Type)
	}
	return ev, nil
}
