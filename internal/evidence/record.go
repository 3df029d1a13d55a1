// Package evidence implements the append-only proof archive and the
// per-domain hash chain linking proof records into a linear history.
package evidence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HaltFlags records why the system declined, when it did.
type HaltFlags struct {
	Variance       bool `json:"variance"`
	Constitutional bool `json:"constitutional"`
	NoQuorum       bool `json:"no_quorum"`
	LowTrust       bool `json:"low_trust"`
}

// Any reports whether any halt flag is set.
func (f HaltFlags) Any() bool {
	return f.Variance || f.Constitutional || f.NoQuorum || f.LowTrust
}

// Record is an immutable proof artifact written once per completed
// pipeline instance. Bundle holds the canonical JSON proof bundle whose
// SHA-256 is ProofHash; PreviousHash links the record into its domain
// chain.
type Record struct {
	ProofID      uuid.UUID       `json:"proof_id"`
	ClaimID      string          `json:"claim_id"`
	InstanceID   uuid.UUID       `json:"instance_id"`
	Domain       string          `json:"domain"`
	Verdict      string          `json:"verdict"`
	Confidence   float64         `json:"confidence"`
	TrustScore   float64         `json:"trust_score"`
	Halt         HaltFlags       `json:"halt"`
	ProofHash    string          `json:"proof_hash"`
	PreviousHash string          `json:"previous_hash"`
	Bundle       json.RawMessage `json:"bundle"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Key returns the record's archive address.
func (r *Record) Key() string {
	return Key(r.Domain, r.InstanceID, r.ProofID)
}

// Key builds the archive address for a proof record.
func Key(domain string, instanceID, proofID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s.json", domain, instanceID, proofID)
}

// Tip is the single small record per domain pointing at the chain head.
// Advancing it is a compare-and-swap; a lost race retries.
type Tip struct {
	Domain    string    `json:"domain"`
	ProofID   uuid.UUID `json:"proof_id"`
	Hash      string    `json:"hash"`
	Height    int64     `json:"height"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TipKey returns the archive address of a domain's chain tip.
func TipKey(domain string) string {
	return domain + "/tip.json"
}
