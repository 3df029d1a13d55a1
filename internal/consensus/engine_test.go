package consensus_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/aegisproof/aegis/internal/consensus"
)

func testParams() consensus.Params {
	return consensus.Params{
		SigmaVar: 0.25,
		MinVotes: 3,
		Thresholds: map[string]float64{
			"vetproof":  0.67,
			"legal":     0.70,
			"finance":   0.75,
			"health":    0.80,
			"education": 0.65,
			"aviation":  0.85,
		},
		DefaultThreshold: 0.70,
	}
}

func testEngine(params consensus.Params) consensus.System {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return consensus.New(consensus.NewMemoryStore(), params, logger)
}

func vote(model string, verdict consensus.Verdict, confidence, weight float64) consensus.Vote {
	return consensus.Vote{
		ModelID:    model,
		Verdict:    verdict,
		Confidence: confidence,
		Coherence:  confidence,
		Weight:     weight,
	}
}

func submitAll(t *testing.T, e consensus.System, session string, votes ...consensus.Vote) *consensus.Snapshot {
	t.Helper()

	var snap *consensus.Snapshot
	var err error
	for _, v := range votes {
		snap, err = e.SubmitVote(context.Background(), session, v)
		if err != nil {
			t.Fatalf("submit vote %s: %v", v.ModelID, err)
		}
	}
	return snap
}

func approx(got, want, tolerance float64) bool {
	return math.Abs(got-want) <= tolerance
}

func TestCleanVerify(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c1", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := submitAll(t, e, "c1",
		vote("m1", consensus.VerdictVerified, 0.90, 1.0),
		vote("m2", consensus.VerdictVerified, 0.88, 1.2),
		vote("m3", consensus.VerdictVerified, 0.86, 1.0),
	)

	if !snap.BFTReached {
		t.Error("expected BFT quorum")
	}
	if snap.Agreement != 1.0 {
		t.Errorf("agreement: got %v, want 1.0", snap.Agreement)
	}
	if !approx(snap.StdDev, 0.0163, 0.001) {
		t.Errorf("stddev: got %v, want ~0.0163", snap.StdDev)
	}
	if !approx(snap.WeightedConfidence, 0.881, 0.001) {
		t.Errorf("weighted confidence: got %v, want ~0.881", snap.WeightedConfidence)
	}
	if snap.Halted() {
		t.Error("no halt expected")
	}
	if snap.FinalVerdict != consensus.VerdictVerified {
		t.Errorf("final verdict: got %s, want verified", snap.FinalVerdict)
	}
}

func TestVarianceHalt(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c2", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := submitAll(t, e, "c2",
		vote("m1", consensus.VerdictVerified, 0.95, 1.0),
		vote("m2", consensus.VerdictUnverified, 0.30, 1.0),
		vote("m3", consensus.VerdictVerified, 0.85, 1.0),
	)

	if !approx(snap.StdDev, 0.287, 0.005) {
		t.Errorf("stddev: got %v, want ~0.287", snap.StdDev)
	}
	if !snap.VarianceHalt {
		t.Error("expected variance halt")
	}
	if snap.FinalVerdict != consensus.VerdictHalt {
		t.Errorf("final verdict: got %s, want halt", snap.FinalVerdict)
	}
}

func TestConstitutionalHalt(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c3", "health"); err != nil {
		t.Fatalf("open: %v", err)
	}

	snap := submitAll(t, e, "c3",
		vote("m1", consensus.VerdictVerified, 0.74, 1.0),
		vote("m2", consensus.VerdictVerified, 0.72, 1.0),
		vote("m3", consensus.VerdictVerified, 0.70, 1.0),
	)

	if !snap.BFTReached {
		t.Error("expected BFT quorum")
	}
	if snap.VarianceHalt {
		t.Error("variance halt not expected")
	}
	if !snap.ConstitutionalHalt {
		t.Errorf("expected constitutional halt at c̄=%v below θ=0.80", snap.WeightedConfidence)
	}
	if snap.FinalVerdict != consensus.VerdictHalt {
		t.Errorf("final verdict: got %s, want halt", snap.FinalVerdict)
	}
}

func TestExactTwoThirdsAgreementNotBFT(t *testing.T) {
	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.80, 1.0),
		vote("m2", consensus.VerdictVerified, 0.80, 1.0),
		vote("m3", consensus.VerdictUnverified, 0.80, 1.0),
	}, testParams())

	if !approx(snap.Agreement, 2.0/3.0, 1e-9) {
		t.Fatalf("agreement: got %v, want 2/3", snap.Agreement)
	}
	if snap.BFTReached {
		t.Error("exact 2/3 agreement must not reach BFT quorum")
	}
	if snap.FinalVerdict != consensus.VerdictHalt {
		t.Errorf("final verdict: got %s, want halt", snap.FinalVerdict)
	}
}

func TestStdDevAtSigmaVarHalts(t *testing.T) {
	// Confidences 0.2, 0.5, 0.8 give σ = sqrt(0.06) exactly.
	params := testParams()
	params.SigmaVar = math.Sqrt(0.06)

	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.2, 1.0),
		vote("m2", consensus.VerdictVerified, 0.5, 1.0),
		vote("m3", consensus.VerdictVerified, 0.8, 1.0),
	}, params)

	if !snap.VarianceHalt {
		t.Error("σ equal to σ_var must trigger the variance halt")
	}
}

func TestConfidenceAtThresholdHalts(t *testing.T) {
	snap := consensus.Compute("s", "legal", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.70, 1.0),
		vote("m2", consensus.VerdictVerified, 0.70, 1.0),
		vote("m3", consensus.VerdictVerified, 0.70, 1.0),
	}, testParams())

	if !snap.ConstitutionalHalt {
		t.Error("c̄ equal to θ must trigger the constitutional halt")
	}
}

func TestErrorVotesExcluded(t *testing.T) {
	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.90, 1.0),
		vote("m2", consensus.VerdictVerified, 0.90, 1.0),
		vote("m3", consensus.VerdictVerified, 0.90, 1.0),
		vote("m4", consensus.VerdictError, 0.10, 1.0),
	}, testParams())

	if snap.ErrorVotes != 1 {
		t.Errorf("error votes: got %d, want 1", snap.ErrorVotes)
	}
	if snap.ValidVotes != 3 {
		t.Errorf("valid votes: got %d, want 3", snap.ValidVotes)
	}
	if snap.WeightedConfidence != 0.90 {
		t.Errorf("error vote leaked into aggregate: c̄=%v", snap.WeightedConfidence)
	}
	if !snap.BFTReached {
		t.Error("error vote must not break quorum")
	}
}

func TestNoQuorumBelowMinVotes(t *testing.T) {
	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.90, 1.0),
		vote("m2", consensus.VerdictVerified, 0.90, 1.0),
	}, testParams())

	if !snap.NoQuorum {
		t.Error("two valid votes must not reach quorum of three")
	}
	if snap.BFTReached {
		t.Error("BFT must be false without quorum")
	}
	if snap.FinalVerdict != consensus.VerdictHalt {
		t.Errorf("final verdict: got %s, want halt", snap.FinalVerdict)
	}
}

func TestAllErrorVotes(t *testing.T) {
	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictError, 0, 1.0),
		vote("m2", consensus.VerdictError, 0, 1.0),
		vote("m3", consensus.VerdictError, 0, 1.0),
	}, testParams())

	if !snap.NoQuorum {
		t.Error("expected no quorum with zero valid votes")
	}
	if snap.MajorityVerdict != consensus.VerdictInsufficientEvidence {
		t.Errorf("majority: got %s, want insufficient_evidence", snap.MajorityVerdict)
	}
	if snap.FinalVerdict != consensus.VerdictHalt {
		t.Errorf("final verdict: got %s, want halt", snap.FinalVerdict)
	}
}

func TestMajorityTieBreaksLexicographically(t *testing.T) {
	snap := consensus.Compute("s", "vetproof", []consensus.Vote{
		vote("m1", consensus.VerdictVerified, 0.90, 1.0),
		vote("m2", consensus.VerdictUnverified, 0.90, 1.0),
	}, testParams())

	if snap.MajorityVerdict != consensus.VerdictUnverified {
		t.Errorf("tie break: got %s, want unverified", snap.MajorityVerdict)
	}
}

func TestResubmitSameVoteIdempotent(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c4", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}

	v := vote("m1", consensus.VerdictVerified, 0.90, 1.0)
	first, err := e.SubmitVote(context.Background(), "c4", v)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := e.SubmitVote(context.Background(), "c4", v)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if first.ValidVotes != second.ValidVotes {
		t.Errorf("vote count changed on resubmission: %d vs %d", first.ValidVotes, second.ValidVotes)
	}
	if first.WeightedConfidence != second.WeightedConfidence {
		t.Errorf("confidence changed on resubmission: %v vs %v", first.WeightedConfidence, second.WeightedConfidence)
	}
}

func TestVoteOverwritesPriorFromSameModel(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c5", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}

	submitAll(t, e, "c5", vote("m1", consensus.VerdictVerified, 0.90, 1.0))
	snap := submitAll(t, e, "c5", vote("m1", consensus.VerdictUnverified, 0.40, 1.0))

	if snap.ValidVotes != 1 {
		t.Errorf("valid votes: got %d, want 1", snap.ValidVotes)
	}
	if snap.MajorityVerdict != consensus.VerdictUnverified {
		t.Errorf("majority: got %s, want unverified", snap.MajorityVerdict)
	}
}

func TestSealRejectsFurtherVotes(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c6", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}
	submitAll(t, e, "c6", vote("m1", consensus.VerdictVerified, 0.90, 1.0))

	if _, err := e.Seal(context.Background(), "c6"); err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err := e.SubmitVote(context.Background(), "c6", vote("m2", consensus.VerdictVerified, 0.90, 1.0))
	if !errors.Is(err, consensus.ErrSessionSealed) {
		t.Errorf("expected ErrSessionSealed, got %v", err)
	}
}

func TestSealIdempotent(t *testing.T) {
	e := testEngine(testParams())

	if _, err := e.Open(context.Background(), "c7", "vetproof"); err != nil {
		t.Fatalf("open: %v", err)
	}
	want := submitAll(t, e, "c7", vote("m1", consensus.VerdictVerified, 0.90, 1.0))

	first, err := e.Seal(context.Background(), "c7")
	if err != nil {
		t.Fatalf("first seal: %v", err)
	}
	second, err := e.Seal(context.Background(), "c7")
	if err != nil {
		t.Fatalf("second seal: %v", err)
	}

	if first.WeightedConfidence != want.WeightedConfidence ||
		second.WeightedConfidence != want.WeightedConfidence {
		t.Error("seal must return the final snapshot unchanged")
	}
}

func TestOpenReturnsExistingSession(t *testing.T) {
	e := testEngine(testParams())

	first, err := e.Open(context.Background(), "c8", "vetproof")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	submitAll(t, e, "c8", vote("m1", consensus.VerdictVerified, 0.90, 1.0))

	second, err := e.Open(context.Background(), "c8", "vetproof")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("session id changed: %s vs %s", first.ID, second.ID)
	}
	if len(second.Votes) != 1 {
		t.Errorf("reopen lost votes: got %d, want 1", len(second.Votes))
	}
}

func TestSnapshotUnknownSession(t *testing.T) {
	e := testEngine(testParams())

	_, err := e.Snapshot(context.Background(), "missing")
	if !errors.Is(err, consensus.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVoteValidation(t *testing.T) {
	tests := []struct {
		name string
		vote consensus.Vote
	}{
		{"missing model id", vote("", consensus.VerdictVerified, 0.9, 1.0)},
		{"unknown verdict", vote("m1", "maybe", 0.9, 1.0)},
		{"derived halt verdict", vote("m1", consensus.VerdictHalt, 0.9, 1.0)},
		{"confidence above one", vote("m1", consensus.VerdictVerified, 1.1, 1.0)},
		{"negative confidence", vote("m1", consensus.VerdictVerified, -0.1, 1.0)},
		{"zero weight", vote("m1", consensus.VerdictVerified, 0.9, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.vote.Validate(); !errors.Is(err, consensus.ErrInvalidVote) {
				t.Errorf("expected ErrInvalidVote, got %v", err)
			}
		})
	}
}

func TestBFTThresholdAboveTwoThirds(t *testing.T) {
	for n := 1; n <= 50; n++ {
		if got := consensus.BFTThreshold(n); got <= 2.0/3.0 {
			t.Errorf("BFTThreshold(%d) = %v, want > 2/3", n, got)
		}
	}
	if got := consensus.BFTThreshold(0); got != 1 {
		t.Errorf("BFTThreshold(0) = %v, want 1", got)
	}
}

func TestDomainThresholdFallback(t *testing.T) {
	p := testParams()

	if got := p.DomainThreshold("aviation"); got != 0.85 {
		t.Errorf("aviation: got %v, want 0.85", got)
	}
	if got := p.DomainThreshold("unknown"); got != 0.70 {
		t.Errorf("fallback: got %v, want 0.70", got)
	}
}
