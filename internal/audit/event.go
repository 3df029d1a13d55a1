// Package audit implements the append-only relational event ledger.
// Most writes are best-effort; stage-complete and proof-signed events are
// durable and written in the same transaction as the state they describe.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of ledger event types.
type Kind string

const (
	KindSubmit        Kind = "submit"
	KindStageStart    Kind = "stage-start"
	KindStageComplete Kind = "stage-complete"
	KindStageFail     Kind = "stage-fail"
	KindHaltTriggered Kind = "halt-triggered"
	KindHITLOpen      Kind = "hitl-open"
	KindHITLResolved  Kind = "hitl-resolved"
	KindHITLExpired   Kind = "hitl-expired"
	KindProofSigned   Kind = "proof-signed"
	KindCancel        Kind = "cancel"
)

// Event is a single ledger row. Payload is a compact JSON object with
// event-specific details.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	ClaimID   string         `json:"claim_id"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates an Event with a fresh id and UTC timestamp.
func NewEvent(claimID string, kind Kind, payload map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		ClaimID:   claimID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
