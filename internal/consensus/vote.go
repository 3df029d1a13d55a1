package consensus

import (
	"fmt"
	"time"
)

// MaxReasoningLength bounds the free-text reasoning carried on a vote.
const MaxReasoningLength = 4096

// Vote is the opinion of a single verifier model on one claim.
// A session holds at most one vote per model id; later submissions
// from the same model overwrite earlier ones.
type Vote struct {
	ModelID    string    `json:"model_id"`
	Verdict    Verdict   `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Coherence  float64   `json:"coherence"`
	Weight     float64   `json:"weight"`
	Reasoning  string    `json:"reasoning,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks range and enum constraints on the vote.
func (v *Vote) Validate() error {
	if v.ModelID == "" {
		return fmt.Errorf("%w: model id required", ErrInvalidVote)
	}
	if !v.Verdict.ValidForVote() {
		return fmt.Errorf("%w: unknown verdict %q", ErrInvalidVote, v.Verdict)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidVote, v.Confidence)
	}
	if v.Coherence < 0 || v.Coherence > 1 {
		return fmt.Errorf("%w: coherence %v outside [0,1]", ErrInvalidVote, v.Coherence)
	}
	if v.Weight <= 0 {
		return fmt.Errorf("%w: weight %v must be > 0", ErrInvalidVote, v.Weight)
	}
	if len(v.Reasoning) > MaxReasoningLength {
		return fmt.Errorf("%w: reasoning exceeds %d bytes", ErrInvalidVote, MaxReasoningLength)
	}
	return nil
}
