package hitl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// Resumer is the orchestrator surface the gate delivers decisions to.
// The concrete orchestrator is bound at wiring time.
type Resumer interface {
	// Resume applies a decision to an instance awaiting review. It must
	// be idempotent: a redelivered decision is a no-op.
	Resume(ctx context.Context, instanceID uuid.UUID, decision Decision) error
}

// System manages review tickets and exposes the review HTTP handler.
type System interface {
	Handler() *Handler

	// Bind attaches the orchestrator. Must be called before Start.
	Bind(r Resumer)

	// Start launches the dispatcher loop that expires stale tickets and
	// delivers resolved decisions.
	Start(lc *lifecycle.Coordinator) error

	// Open creates an awaiting ticket for an instance. Reopening for the
	// same instance returns the existing ticket unchanged.
	Open(ctx context.Context, claimID string, instanceID uuid.UUID, domain, risk, reason string) (*Ticket, error)

	// Resolve applies a reviewer decision to an awaiting ticket. A
	// second decision returns ErrAlreadyResolved.
	Resolve(ctx context.Context, ticketID uuid.UUID, decision Decision) (*Ticket, error)

	// ResolveByClaim resolves the awaiting ticket for a claim.
	ResolveByClaim(ctx context.Context, claimID string, decision Decision) (*Ticket, error)

	// Find returns a ticket by id.
	Find(ctx context.Context, ticketID uuid.UUID) (*Ticket, error)

	// ListPending returns awaiting tickets oldest first.
	ListPending(ctx context.Context, max int) ([]Ticket, error)

	// Expire transitions awaiting tickets past their deadline to
	// expired, recording a synthetic rejection. Returns the count.
	Expire(ctx context.Context, now time.Time) (int, error)
}
