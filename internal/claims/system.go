package claims

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/pkg/pagination"
)

// PipelineStatus is the claims-facing view of a pipeline instance.
type PipelineStatus struct {
	InstanceID uuid.UUID `json:"instance_id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusView combines a claim with its pipeline progress.
type StatusView struct {
	Claim    *Claim          `json:"claim"`
	Pipeline *PipelineStatus `json:"pipeline,omitempty"`
}

// Orchestrator is the pipeline surface the claims domain depends on.
// The concrete orchestrator is injected at wiring time.
type Orchestrator interface {
	// Launch starts a pipeline instance for a newly accepted claim.
	Launch(ctx context.Context, claim *Claim) (uuid.UUID, error)

	// Status returns the latest pipeline instance for a claim, or nil
	// when no instance exists.
	Status(ctx context.Context, claimID string) (*PipelineStatus, error)

	// Proof returns the signed proof record for a completed claim.
	Proof(ctx context.Context, claim *Claim) (json.RawMessage, error)

	// Cancel requests cancellation at the next stage boundary.
	Cancel(ctx context.Context, claimID string) error
}

// System manages claim ingress and exposes its HTTP handler.
type System interface {
	Handler() *Handler

	// Submit validates and stores a claim, then launches its pipeline.
	// A duplicate id returns ErrDuplicate.
	Submit(ctx context.Context, cmd SubmitCommand) (*StatusView, error)

	// Find returns a claim by id.
	Find(ctx context.Context, id string) (*Claim, error)

	// Status returns a claim and its pipeline progress.
	Status(ctx context.Context, id string) (*StatusView, error)

	// Proof returns the signed proof record for a completed claim.
	Proof(ctx context.Context, id string) (json.RawMessage, error)

	// Cancel requests cancellation of a claim's running pipeline.
	Cancel(ctx context.Context, id string) error

	// List returns a page of claims with optional search and filters.
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Claim], error)
}
