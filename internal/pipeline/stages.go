package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/gateway"
	"github.com/aegisproof/aegis/internal/sanitize"
	"github.com/aegisproof/aegis/internal/vector"
)

// haltStdDev is the absolute deviation bound that raises a trust flag
// independently of the variance halt threshold.
const haltStdDev = 0.30

// lowMeanConfidence raises a trust flag regardless of the domain's
// constitutional threshold.
const lowMeanConfidence = 0.5

// Trust flag tags recorded by the detect stage.
const (
	FlagHighStdDev    = "stddev_above_sigma"
	FlagNoQuorum      = "no_bft_quorum"
	FlagLowConfidence = "low_mean_confidence"
	FlagExtremeStdDev = "stddev_above_030"
	FlagLowSimilarity = "low_evidence_similarity"
)

func (o *Orchestrator) runStage(ctx context.Context, inst *Instance, stage Stage) error {
	switch stage {
	case StageSanitize:
		return o.runSanitize(ctx, inst)
	case StageEmbed:
		return o.runEmbed(ctx, inst)
	case StageSearch:
		return o.runSearch(ctx, inst)
	case StageVerify:
		return o.runVerify(ctx, inst)
	case StageDetect:
		return o.runDetect(ctx, inst)
	case StageSign:
		return o.runSign(ctx, inst)
	}
	return fmt.Errorf("%w: unknown stage %s", ErrTerminal, stage)
}

func (o *Orchestrator) runSanitize(_ context.Context, inst *Instance) error {
	claim := inst.Checkpoint.Claim
	res := sanitize.Scan(claim.Text, claim.Evidence)

	inst.Checkpoint.Sanitize = &SanitizeResult{
		Text:        res.Text,
		Evidence:    res.Evidence,
		Categories:  res.Categories,
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

func (o *Orchestrator) runEmbed(ctx context.Context, inst *Instance) error {
	san := inst.Checkpoint.Sanitize

	body, err := o.gateway.Embed(ctx, san.Text)
	if err != nil {
		return fmt.Errorf("embed claim body: %w", err)
	}

	result := &EmbedResult{
		BodyVector: body,
		// A claim with no evidence has nothing to diverge from.
		Similarity:  1,
		CompletedAt: time.Now().UTC(),
	}

	if len(san.Evidence) > 0 {
		ev, err := o.gateway.Embed(ctx, strings.Join(san.Evidence, "\n\n"))
		if err != nil {
			return fmt.Errorf("embed evidence: %w", err)
		}
		result.EvidenceVector = ev
		result.Similarity = cosine(body, ev)
	}

	if err := o.vector.Upsert(ctx, inst.ClaimID, inst.Domain, body, result.EvidenceVector); err != nil {
		if errors.Is(err, vector.ErrInvalidVector) {
			return fmt.Errorf("%w: %v", ErrTerminal, err)
		}
		return fmt.Errorf("index claim vectors: %w", err)
	}

	inst.Checkpoint.Embed = result
	return nil
}

func (o *Orchestrator) runSearch(ctx context.Context, inst *Instance) error {
	matches, err := o.vector.Search(ctx, inst.Checkpoint.Embed.BodyVector, inst.ClaimID, o.cfg.TopK)
	if err != nil {
		return fmt.Errorf("search similar claims: %w", err)
	}

	kept := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		if m.Cosine > o.cfg.SimilarityCut {
			kept = append(kept, m)
		}
	}

	inst.Checkpoint.Search = &SearchResult{
		Matches:     kept,
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

func (o *Orchestrator) runVerify(ctx context.Context, inst *Instance) error {
	if _, err := o.consensus.Open(ctx, inst.ClaimID, inst.Domain); err != nil {
		return fmt.Errorf("open voting session: %w", err)
	}

	req := gateway.OpinionRequest{
		ClaimText: inst.Checkpoint.Sanitize.Text,
		Evidence:  inst.Checkpoint.Sanitize.Evidence,
		Similar:   similarContext(inst.Checkpoint.Search),
		Domain:    inst.Domain,
	}

	sem := semaphore.NewWeighted(o.cfg.VerifyConcurrency)
	var wg sync.WaitGroup

	for _, v := range o.gateway.Verifiers() {
		wg.Add(1)
		go func(v gateway.Verifier) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			vote, err := o.gateway.Opinion(ctx, v.Name, req)
			if err != nil {
				o.logger.Warn("verifier opinion failed",
					"claim", inst.ClaimID,
					"verifier", v.Name,
					"error", err)
				vote = errorVote(v, err)
			}

			if _, err := o.consensus.SubmitVote(ctx, inst.ClaimID, vote); err != nil {
				o.logger.Error("vote submission failed",
					"claim", inst.ClaimID,
					"verifier", v.Name,
					"error", err)
			}
		}(v)
	}
	wg.Wait()

	snap, err := o.consensus.Seal(ctx, inst.ClaimID)
	if err != nil {
		return fmt.Errorf("seal voting session: %w", err)
	}

	o.cache.SetJSON(ctx, cache.SnapshotKey(inst.ClaimID), snap)

	inst.Checkpoint.Verify = &VerifyResult{
		SessionID:   inst.ClaimID,
		Snapshot:    *snap,
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

func (o *Orchestrator) runDetect(_ context.Context, inst *Instance) error {
	snap := inst.Checkpoint.Verify.Snapshot
	similarity := inst.Checkpoint.Embed.Similarity

	var flags []string
	if snap.VarianceHalt {
		flags = append(flags, FlagHighStdDev)
	}
	if !snap.BFTReached {
		flags = append(flags, FlagNoQuorum)
	}
	if snap.WeightedConfidence < lowMeanConfidence {
		flags = append(flags, FlagLowConfidence)
	}
	if snap.StdDev > haltStdDev {
		flags = append(flags, FlagExtremeStdDev)
	}
	if similarity < o.cfg.LowSimilarityFlag {
		flags = append(flags, FlagLowSimilarity)
	}

	count := len(flags)
	trust := math.Max(0, 1-0.2*float64(count))
	halt := snap.ConstitutionalHalt || snap.VarianceHalt || count >= 3

	risk := deriveRisk(count, trust, halt)
	required, reason := o.reviewRequired(inst, snap, risk)

	inst.Checkpoint.Detect = &DetectResult{
		Flags:          flags,
		FlagCount:      count,
		TrustScore:     trust,
		Risk:           risk,
		HaltRequired:   halt,
		ReviewRequired: required,
		ReviewReason:   reason,
		CompletedAt:    time.Now().UTC(),
	}
	return nil
}

// deriveRisk maps the trust analysis to a risk level.
func deriveRisk(flagCount int, trust float64, halt bool) string {
	switch {
	case flagCount >= 4 || (halt && trust <= 0.2):
		return RiskCritical
	case flagCount >= 2 || halt:
		return RiskHigh
	case flagCount == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

func (o *Orchestrator) reviewRequired(inst *Instance, snap consensus.Snapshot, risk string) (bool, string) {
	switch {
	case risk == RiskHigh || risk == RiskCritical:
		return true, "risk " + risk
	case snap.ConstitutionalHalt:
		return true, "constitutional halt"
	case inst.Priority == "high":
		return true, "caller priority high"
	case o.cfg.ReviewMandated(inst.Domain):
		return true, "domain policy"
	}
	return false, ""
}

func similarContext(search *SearchResult) []gateway.SimilarClaim {
	if search == nil || len(search.Matches) == 0 {
		return nil
	}

	out := make([]gateway.SimilarClaim, 0, len(search.Matches))
	for _, m := range search.Matches {
		out = append(out, gateway.SimilarClaim{ClaimID: m.ClaimID, Cosine: m.Cosine})
	}
	return out
}

func errorVote(v gateway.Verifier, err error) consensus.Vote {
	reason := err.Error()
	if len(reason) > consensus.MaxReasoningLength {
		reason = reason[:consensus.MaxReasoningLength]
	}

	return consensus.Vote{
		ModelID:    v.Name,
		Verdict:    consensus.VerdictError,
		Confidence: 0,
		Coherence:  0,
		Weight:     v.Weight,
		Reasoning:  reason,
		ReceivedAt: time.Now().UTC(),
	}
}

// cosine computes the cosine similarity of two equal-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
