package consensus

import (
	"context"
)

// System defines the public contract of the consensus engine.
type System interface {
	Handler() *Handler

	// Open creates the voting session for a claim, or returns the existing
	// one. The session id is the claim id.
	Open(ctx context.Context, id, domain string) (*Session, error)

	// SubmitVote validates and upserts a vote, recomputes the snapshot,
	// and returns it. Fails with ErrInvalidVote on range or enum
	// violations and ErrSessionSealed once the session is finalized.
	SubmitVote(ctx context.Context, sessionID string, v Vote) (*Snapshot, error)

	// Snapshot returns the current snapshot, or ErrNotFound.
	Snapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// Seal marks the session immutable and returns the final snapshot.
	// Sealing an already sealed session returns the final snapshot.
	Seal(ctx context.Context, sessionID string) (*Snapshot, error)
}
