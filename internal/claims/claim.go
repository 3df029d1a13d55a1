// Package claims is the ingress domain for verification requests: the
// Claim entity, its validation rules, and the submit/status/proof
// surface that launches pipeline instances.
package claims

import (
	"fmt"
	"time"
)

// Bounds on claim submissions.
const (
	MaxIDLength       = 128
	MaxTextLength     = 16384
	MaxEvidenceItems  = 32
	MaxEvidenceLength = 8192
)

// Priority levels. Empty priority is treated as normal.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Domains is the closed set of verification domains. Each carries its
// own constitutional threshold and proof chain.
var Domains = []string{
	"aviation",
	"education",
	"finance",
	"health",
	"legal",
	"vetproof",
}

// ValidDomain reports whether domain is a member of the closed set.
func ValidDomain(domain string) bool {
	for _, d := range Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Claim is a caller-submitted assertion to verify. The ID is
// caller-supplied so retried submissions stay idempotent.
type Claim struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Evidence  []string  `json:"evidence,omitempty"`
	Domain    string    `json:"domain"`
	Priority  string    `json:"priority,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitCommand carries the fields of a claim submission.
type SubmitCommand struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Evidence []string `json:"evidence,omitempty"`
	Domain   string   `json:"domain"`
	Priority string   `json:"priority,omitempty"`
}

// Validate checks submission bounds and the closed domain set.
func (c SubmitCommand) Validate() error {
	if c.ID == "" || len(c.ID) > MaxIDLength {
		return fmt.Errorf("%w: id must be 1..%d characters", ErrInvalidClaim, MaxIDLength)
	}
	if c.Text == "" || len(c.Text) > MaxTextLength {
		return fmt.Errorf("%w: text must be 1..%d characters", ErrInvalidClaim, MaxTextLength)
	}
	if len(c.Evidence) > MaxEvidenceItems {
		return fmt.Errorf("%w: at most %d evidence items", ErrInvalidClaim, MaxEvidenceItems)
	}
	for i, ev := range c.Evidence {
		if len(ev) > MaxEvidenceLength {
			return fmt.Errorf("%w: evidence[%d] exceeds %d characters", ErrInvalidClaim, i, MaxEvidenceLength)
		}
	}
	if !ValidDomain(c.Domain) {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidClaim, c.Domain)
	}
	switch c.Priority {
	case "", PriorityNormal, PriorityHigh:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidClaim, c.Priority)
	}
	return nil
}

// Claim builds the entity for a validated command, normalizing the
// empty priority.
func (c SubmitCommand) Claim(now time.Time) *Claim {
	priority := c.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	return &Claim{
		ID:        c.ID,
		Text:      c.Text,
		Evidence:  c.Evidence,
		Domain:    c.Domain,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
