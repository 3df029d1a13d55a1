// Package hitl implements the human review gate: tickets opened when a
// pipeline instance needs a reviewer, exactly-once decision delivery
// back to the orchestrator, and expiry of stale tickets.
package hitl

import (
	"time"

	"github.com/google/uuid"
)

// Ticket status values. A ticket makes exactly one transition out of
// awaiting.
const (
	StatusAwaiting = "awaiting"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

// Ticket is one pending review for a pipeline instance.
type Ticket struct {
	ID         uuid.UUID  `json:"id"`
	ClaimID    string     `json:"claim_id"`
	InstanceID uuid.UUID  `json:"instance_id"`
	Domain     string     `json:"domain"`
	Risk       string     `json:"risk"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	Reviewer   string     `json:"reviewer,omitempty"`
	Note       string     `json:"note,omitempty"`
	Auto       bool       `json:"auto,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Delivered  bool       `json:"delivered"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Terminal reports whether the ticket has left the awaiting state.
func (t *Ticket) Terminal() bool {
	return t.Status != StatusAwaiting
}

// Decision is the outcome delivered to the orchestrator. Auto marks
// synthetic decisions (auto-approval bypass, expiry rejection).
type Decision struct {
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
	Auto     bool   `json:"auto,omitempty"`
}

// Decision extracts the recorded decision from a terminal ticket.
func (t *Ticket) Decision() Decision {
	return Decision{
		Approved: t.Status == StatusApproved,
		Reviewer: t.Reviewer,
		Note:     t.Note,
		Auto:     t.Auto,
	}
}
