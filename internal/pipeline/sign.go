package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/internal/hitl"
	"github.com/aegisproof/aegis/pkg/canonical"
)

// proofBundle is the canonical artifact hashed into the proof chain.
// Every field derives from the checkpoint, never from the wall clock, so
// re-running sign after a crash yields byte-identical output. The proof
// hash is not part of the bundle; it is the digest of these exact bytes
// and lives on the record beside them.
type proofBundle struct {
	ClaimID         string         `json:"claim_id"`
	PipelineVersion string         `json:"pipeline_version"`
	Stages          proofStages    `json:"stages"`
	Decision        *hitl.Decision `json:"decision,omitempty"`
	Verdict         string         `json:"verdict"`
	FinalConfidence float64        `json:"final_confidence"`
	TrustScore      float64        `json:"trust_score"`
	Timestamp       string         `json:"timestamp"`
	DurationMS      int64          `json:"duration_ms"`
	PreviousHash    string         `json:"previous_hash"`
}

type proofStages struct {
	Sanitize *SanitizeResult `json:"sanitize"`
	Embed    *EmbedResult    `json:"embed"`
	Search   *SearchResult   `json:"search"`
	Verify   *VerifyResult   `json:"verify"`
	Detect   *DetectResult   `json:"detect"`
}

// ProofID derives the deterministic proof id for an instance.
func ProofID(instanceID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("aegis:proof:"+instanceID.String()))
}

func (o *Orchestrator) runSign(ctx context.Context, inst *Instance) error {
	rec, err := o.chain.Append(ctx, inst.Domain, func(prevHash string) (*evidence.Record, error) {
		return composeRecord(inst, o.cfg.Version, prevHash)
	})
	if err != nil {
		return fmt.Errorf("append proof record: %w", err)
	}

	o.cache.SetJSON(ctx, cache.ProofKey(inst.ClaimID), rec)

	inst.Checkpoint.Sign = &SignResult{
		ProofID:      rec.ProofID,
		ProofHash:    rec.ProofHash,
		PreviousHash: rec.PreviousHash,
		Key:          rec.Key(),
		CompletedAt:  rec.CreatedAt,
	}
	return nil
}

// composeRecord builds the proof record for an instance against the
// given chain head. Called again on a lost tip race.
func composeRecord(inst *Instance, version, prevHash string) (*evidence.Record, error) {
	ck := inst.Checkpoint
	snap := ck.Verify.Snapshot
	detect := ck.Detect

	bundle := proofBundle{
		ClaimID:         inst.ClaimID,
		PipelineVersion: version,
		Stages: proofStages{
			Sanitize: ck.Sanitize,
			Embed:    ck.Embed,
			Search:   ck.Search,
			Verify:   ck.Verify,
			Detect:   ck.Detect,
		},
		Decision:        ck.Decision,
		Verdict:         finalVerdict(snap, detect, ck.Decision),
		FinalConfidence: snap.WeightedConfidence,
		TrustScore:      detect.TrustScore,
		Timestamp:       detect.CompletedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		DurationMS:      detect.CompletedAt.Sub(ck.StartedAt).Milliseconds(),
		PreviousHash:    prevHash,
	}

	data, err := canonical.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("serialize proof bundle: %w", err)
	}
	hash := canonical.HashBytes(data)

	return &evidence.Record{
		ProofID:    ProofID(inst.ID),
		ClaimID:    inst.ClaimID,
		InstanceID: inst.ID,
		Domain:     inst.Domain,
		Verdict:    bundle.Verdict,
		Confidence: snap.WeightedConfidence,
		TrustScore: detect.TrustScore,
		Halt: evidence.HaltFlags{
			Variance:       snap.VarianceHalt,
			Constitutional: snap.ConstitutionalHalt,
			NoQuorum:       snap.NoQuorum,
			LowTrust:       detect.FlagCount >= 3,
		},
		ProofHash:    hash,
		PreviousHash: prevHash,
		Bundle:       data,
		CreatedAt:    detect.CompletedAt,
	}, nil
}

// finalVerdict resolves the proof verdict: any halt signal or a human
// rejection produces a halt proof.
func finalVerdict(snap consensus.Snapshot, detect *DetectResult, decision *hitl.Decision) string {
	if detect.HaltRequired || snap.FinalVerdict == consensus.VerdictHalt {
		return string(consensus.VerdictHalt)
	}
	if decision != nil && !decision.Approved {
		return string(consensus.VerdictHalt)
	}
	return string(snap.FinalVerdict)
}

// signedEvent is the durable proof-signed ledger entry written with the
// sign checkpoint.
func signedEvent(inst *Instance) audit.Event {
	sign := inst.Checkpoint.Sign
	return audit.NewEvent(inst.ClaimID, audit.KindProofSigned, map[string]any{
		"instance":   inst.ID,
		"proof":      sign.ProofID,
		"proof_hash": sign.ProofHash,
		"previous":   sign.PreviousHash,
	})
}
