// Package pipeline implements the durable verification pipeline: a fixed
// stage sequence (sanitize, embed, search, verify, detect, sign) driven
// over a persisted checkpoint so any crash is recoverable and no stage
// completes twice.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/internal/claims"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/hitl"
	"github.com/aegisproof/aegis/internal/vector"
)

// Stage identifies one step of the fixed pipeline sequence.
type Stage string

const (
	StageSanitize Stage = "sanitize"
	StageEmbed    Stage = "embed"
	StageSearch   Stage = "search"
	StageVerify   Stage = "verify"
	StageDetect   Stage = "detect"
	StageSign     Stage = "sign"
)

// stageOrder is the fixed execution sequence.
var stageOrder = []Stage{
	StageSanitize,
	StageEmbed,
	StageSearch,
	StageVerify,
	StageDetect,
	StageSign,
}

// next returns the stage after s, or "" when s is the last stage.
func next(s Stage) Stage {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return ""
}

// Instance status values. failed and cancelled are terminal; completed
// means a proof record exists.
const (
	StatusRunning        = "running"
	StatusAwaitingReview = "awaiting_review"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
)

// Instance is one durable pipeline execution for a claim.
type Instance struct {
	ID         uuid.UUID      `json:"id"`
	ClaimID    string         `json:"claim_id"`
	Domain     string         `json:"domain"`
	Priority   string         `json:"priority"`
	Stage      Stage          `json:"stage"`
	Status     string         `json:"status"`
	Attempts   map[Stage]int  `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
	Checkpoint Checkpoint     `json:"checkpoint"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Terminal reports whether the instance can never run again.
func (i *Instance) Terminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed || i.Status == StatusCancelled
}

// Checkpoint is the durable record of completed stage outputs. Each
// field is set exactly once when its stage completes; resume skips any
// stage whose output is already present.
type Checkpoint struct {
	Claim     *claims.Claim   `json:"claim"`
	StartedAt time.Time       `json:"started_at"`
	Sanitize  *SanitizeResult `json:"sanitize,omitempty"`
	Embed     *EmbedResult    `json:"embed,omitempty"`
	Search    *SearchResult   `json:"search,omitempty"`
	Verify    *VerifyResult   `json:"verify,omitempty"`
	Detect    *DetectResult   `json:"detect,omitempty"`
	Sign      *SignResult     `json:"sign,omitempty"`
	Decision  *hitl.Decision  `json:"decision,omitempty"`
}

// StageComplete reports whether the given stage's output is checkpointed.
func (c *Checkpoint) StageComplete(s Stage) bool {
	switch s {
	case StageSanitize:
		return c.Sanitize != nil
	case StageEmbed:
		return c.Embed != nil
	case StageSearch:
		return c.Search != nil
	case StageVerify:
		return c.Verify != nil
	case StageDetect:
		return c.Detect != nil
	case StageSign:
		return c.Sign != nil
	}
	return false
}

// SanitizeResult is the redacted claim body and detected categories.
type SanitizeResult struct {
	Text        string    `json:"text"`
	Evidence    []string  `json:"evidence,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// EmbedResult holds the claim and evidence embeddings and their cosine
// similarity. Similarity is 1 when the claim carries no evidence.
type EmbedResult struct {
	BodyVector     []float32 `json:"body_vector"`
	EvidenceVector []float32 `json:"evidence_vector,omitempty"`
	Similarity     float64   `json:"similarity"`
	CompletedAt    time.Time `json:"completed_at"`
}

// SearchResult is the similar-claims context from the vector index.
type SearchResult struct {
	Matches     []vector.Match `json:"matches,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// VerifyResult is the sealed consensus outcome for the claim.
type VerifyResult struct {
	SessionID   string             `json:"session_id"`
	Snapshot    consensus.Snapshot `json:"snapshot"`
	CompletedAt time.Time          `json:"completed_at"`
}

// DetectResult carries the trust analysis derived from the snapshot and
// upstream signals.
type DetectResult struct {
	Flags          []string  `json:"flags,omitempty"`
	FlagCount      int       `json:"flag_count"`
	TrustScore     float64   `json:"trust_score"`
	Risk           string    `json:"risk"`
	HaltRequired   bool      `json:"halt_required"`
	ReviewRequired bool      `json:"review_required"`
	ReviewReason   string    `json:"review_reason,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// SignResult records the written proof.
type SignResult struct {
	ProofID      uuid.UUID `json:"proof_id"`
	ProofHash    string    `json:"proof_hash"`
	PreviousHash string    `json:"previous_hash"`
	Key          string    `json:"key"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Risk levels derived by the detect stage.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)
