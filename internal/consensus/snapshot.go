package consensus

import (
	"math"
	"slices"
	"time"
)

// Epsilon is the fixed margin applied on the halt-favoring side of every
// threshold comparison. Halts win ties.
const Epsilon = 1e-9

// Params holds the tunable thresholds for snapshot computation.
type Params struct {
	// SigmaVar is the confidence standard deviation above which the
	// Variance Halt triggers (inclusive).
	SigmaVar float64
	// MinVotes is the minimum number of valid votes for quorum.
	MinVotes int
	// Thresholds maps domain tags to constitutional halt thresholds.
	Thresholds map[string]float64
	// DefaultThreshold applies to domains absent from Thresholds.
	DefaultThreshold float64
}

// DomainThreshold returns the constitutional halt threshold for a domain.
func (p Params) DomainThreshold(domain string) float64 {
	if t, ok := p.Thresholds[domain]; ok {
		return t
	}
	return p.DefaultThreshold
}

// Snapshot is the consensus state derived from the current vote set of a
// session. It is recomputed on every vote submission and cached on the
// session row.
type Snapshot struct {
	SessionID          string    `json:"session_id"`
	Domain             string    `json:"domain"`
	MajorityVerdict    Verdict   `json:"majority_verdict"`
	FinalVerdict       Verdict   `json:"final_verdict"`
	WeightedConfidence float64   `json:"weighted_confidence"`
	StdDev             float64   `json:"std_dev"`
	Agreement          float64   `json:"agreement"`
	TotalWeight        float64   `json:"total_weight"`
	ValidVotes         int       `json:"valid_votes"`
	ErrorVotes         int       `json:"error_votes"`
	BFTReached         bool      `json:"bft_reached"`
	VarianceHalt       bool      `json:"variance_halt"`
	ConstitutionalHalt bool      `json:"constitutional_halt"`
	NoQuorum           bool      `json:"no_quorum"`
	ComputedAt         time.Time `json:"computed_at"`
}

// Halted reports whether either halt flag is set.
func (s *Snapshot) Halted() bool {
	return s.VarianceHalt || s.ConstitutionalHalt
}

// BFTThreshold returns the agreement ratio required for Byzantine quorum
// with n valid votes: (2n+2)/(3n), which stays strictly above 2/3 for any
// finite n and accounts for integer vote splits.
func BFTThreshold(n int) float64 {
	if n <= 0 {
		return 1
	}
	return float64(2*n+2) / float64(3*n)
}

// Compute derives a Snapshot from the given votes. It is a pure function
// of the vote set, the domain, and the params: the caller guarantees votes
// are already unique by model id. Votes with verdict=error are counted but
// excluded from all aggregates.
func Compute(sessionID, domain string, votes []Vote, p Params) Snapshot {
	snap := Snapshot{
		SessionID:  sessionID,
		Domain:     domain,
		ComputedAt: time.Now().UTC(),
	}

	valid := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Verdict == VerdictError {
			snap.ErrorVotes++
			continue
		}
		valid = append(valid, v)
	}
	snap.ValidVotes = len(valid)

	if len(valid) == 0 {
		snap.NoQuorum = true
		snap.MajorityVerdict = VerdictInsufficientEvidence
		snap.FinalVerdict = VerdictHalt
		return snap
	}

	var totalWeight, weightedSum float64
	byVerdict := make(map[Verdict]float64)
	for _, v := range valid {
		totalWeight += v.Weight
		weightedSum += v.Weight * v.Confidence
		byVerdict[v.Verdict] += v.Weight
	}

	snap.TotalWeight = totalWeight
	snap.WeightedConfidence = weightedSum / totalWeight
	snap.MajorityVerdict = majority(byVerdict)
	snap.Agreement = byVerdict[snap.MajorityVerdict] / totalWeight
	snap.StdDev = stdDev(valid)

	snap.NoQuorum = len(valid) < p.MinVotes
	snap.BFTReached = !snap.NoQuorum && snap.Agreement+Epsilon >= BFTThreshold(len(valid))

	// Halts win ties: equality with the threshold triggers the halt.
	snap.VarianceHalt = snap.StdDev > p.SigmaVar-Epsilon
	theta := p.DomainThreshold(domain)
	snap.ConstitutionalHalt = snap.WeightedConfidence < theta+Epsilon

	if snap.Halted() || !snap.BFTReached {
		snap.FinalVerdict = VerdictHalt
	} else {
		snap.FinalVerdict = snap.MajorityVerdict
	}

	return snap
}

// majority returns the verdict with the largest accumulated weight,
// breaking ties by lexicographic order of the verdict tag.
func majority(byVerdict map[Verdict]float64) Verdict {
	keys := make([]Verdict, 0, len(byVerdict))
	for k := range byVerdict {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var winner Verdict
	best := math.Inf(-1)
	for _, k := range keys {
		if byVerdict[k] > best+Epsilon {
			winner = k
			best = byVerdict[k]
		}
	}
	return winner
}

// stdDev computes the population standard deviation over the unweighted
// confidences of the valid votes. Weighted confidence drives the
// constitutional threshold while the variance halt deliberately ignores
// weights; tests pin this asymmetry. Returns 0 when n <= 1.
func stdDev(votes []Vote) float64 {
	n := len(votes)
	if n <= 1 {
		return 0
	}

	var mean float64
	for _, v := range votes {
		mean += v.Confidence
	}
	mean /= float64(n)

	var sum float64
	for _, v := range votes {
		d := v.Confidence - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
