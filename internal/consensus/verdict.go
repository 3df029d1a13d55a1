// Package consensus implements the voting engine for claim verification.
// It collects weighted opinions from independent verifier models, computes
// Byzantine-fault-tolerant agreement, and raises deterministic halt signals
// when opinions diverge or aggregate confidence is too low.
package consensus

// Verdict is the opinion tag a verifier model assigns to a claim.
type Verdict string

// Verdict values accepted on vote submission. VerdictHalt is derived only;
// it never appears on an individual vote.
const (
	VerdictVerified             Verdict = "verified"
	VerdictUnverified           Verdict = "unverified"
	VerdictInsufficientEvidence Verdict = "insufficient_evidence"
	VerdictNeedsReview          Verdict = "needs_review"
	VerdictError                Verdict = "error"

	VerdictHalt Verdict = "halt"
)

var voteVerdicts = map[Verdict]bool{
	VerdictVerified:             true,
	VerdictUnverified:           true,
	VerdictInsufficientEvidence: true,
	VerdictNeedsReview:          true,
	VerdictError:                true,
}

// ValidForVote reports whether v is a member of the closed vote verdict set.
func (v Verdict) ValidForVote() bool {
	return voteVerdicts[v]
}
