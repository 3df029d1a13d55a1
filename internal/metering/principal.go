// Package metering implements API key authentication, per-tier daily
// quotas, and usage accounting for claim submissions.
package metering

import "time"

// Caller roles. Reviewers may resolve review tickets; model keys may
// submit out-of-band votes.
const (
	RoleClient   = "client"
	RoleReviewer = "reviewer"
	RoleModel    = "model"
)

// Billing tiers.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Principal is an authenticated API key.
type Principal struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Tier      string    `json:"tier"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// CanReview reports whether the principal may resolve review tickets.
func (p *Principal) CanReview() bool {
	return p.Role == RoleReviewer
}

// CanVote reports whether the principal may submit consensus votes.
func (p *Principal) CanVote() bool {
	return p.Role == RoleModel || p.Role == RoleReviewer
}
