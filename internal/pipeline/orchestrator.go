package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/claims"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/internal/gateway"
	"github.com/aegisproof/aegis/internal/hitl"
	"github.com/aegisproof/aegis/internal/vector"
	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// Orchestrator drives pipeline instances through the stage sequence. It
// implements the claims ingress surface and receives review decisions
// from the gate dispatcher.
type Orchestrator struct {
	store     instanceStore
	consensus consensus.System
	gateway   gateway.System
	vector    vector.System
	chain     *evidence.Chain
	evidence  evidence.Store
	cache     cache.System
	ledger    audit.Ledger
	gate      hitl.System
	cfg       *Config
	logger    *slog.Logger
	runCtx    context.Context
}

// New creates an Orchestrator. Start must be called before Launch.
func New(
	db *sql.DB,
	cons consensus.System,
	gw gateway.System,
	vec vector.System,
	chain *evidence.Chain,
	ev evidence.Store,
	c cache.System,
	ledger audit.Ledger,
	gate hitl.System,
	cfg *Config,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     &store{db: db},
		consensus: cons,
		gateway:   gw,
		vector:    vec,
		chain:     chain,
		evidence:  ev,
		cache:     c,
		ledger:    ledger,
		gate:      gate,
		cfg:       cfg,
		logger:    logger.With("system", "pipeline"),
	}
}

// Start captures the lifecycle context for instance goroutines and
// resumes instances that were mid-flight when the process last stopped.
func (o *Orchestrator) Start(lc *lifecycle.Coordinator) error {
	o.runCtx = lc.Context()
	o.logger.Info("starting pipeline orchestrator", "version", o.cfg.Version)

	lc.OnStartup(func() {
		instances, err := o.store.running(lc.Context())
		if err != nil {
			o.logger.Error("crash recovery scan failed", "error", err)
			return
		}

		for i := range instances {
			inst := instances[i]
			o.logger.Info("recovering instance",
				"instance", inst.ID,
				"claim", inst.ClaimID,
				"stage", inst.Stage)
			go o.run(inst)
		}
	})

	return nil
}

// Launch starts a pipeline instance for a newly accepted claim.
func (o *Orchestrator) Launch(ctx context.Context, claim *claims.Claim) (uuid.UUID, error) {
	now := time.Now().UTC()
	inst := Instance{
		ID:       uuid.New(),
		ClaimID:  claim.ID,
		Domain:   claim.Domain,
		Priority: claim.Priority,
		Stage:    StageSanitize,
		Status:   StatusRunning,
		Attempts: make(map[Stage]int),
		Checkpoint: Checkpoint{
			Claim:     claim,
			StartedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.create(ctx, &inst); err != nil {
		return uuid.Nil, err
	}

	o.logger.Info("instance launched",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"domain", inst.Domain)

	go o.run(inst)
	return inst.ID, nil
}

// run advances an instance until it suspends or terminates. Stage
// completion is exactly-once: a stage whose checkpoint output exists is
// never re-executed, and the checkpoint write is atomic with its durable
// stage-complete audit event.
func (o *Orchestrator) run(inst Instance) {
	ctx := o.runCtx

	for inst.Status == StatusRunning {
		if o.cancelled(ctx, &inst) {
			return
		}

		stage := inst.Stage
		if !inst.Checkpoint.StageComplete(stage) {
			if !o.executeStage(ctx, &inst, stage) {
				return
			}
		}

		if stage == StageDetect && o.suspendForReview(ctx, &inst) {
			return
		}

		if stage == StageSign {
			o.complete(ctx, &inst)
			return
		}

		inst.Stage = next(stage)
		if err := o.store.save(ctx, &inst); err != nil {
			o.logger.Error("stage advance persist failed",
				"instance", inst.ID,
				"stage", inst.Stage,
				"error", err)
			return
		}
	}
}

// executeStage runs one stage under its retry policy and persists the
// result. Returns false when the instance stopped (failure or shutdown).
func (o *Orchestrator) executeStage(ctx context.Context, inst *Instance, stage Stage) bool {
	sc := o.cfg.StageConfig(stage)

	o.ledger.Record(ctx, audit.NewEvent(inst.ClaimID, audit.KindStageStart, map[string]any{
		"instance": inst.ID,
		"stage":    stage,
	}))

	err := execute(ctx, sc.policy(), sc.timeout(),
		func(n int) { inst.Attempts[stage] = n },
		func(attemptCtx context.Context) error {
			return o.runStage(attemptCtx, inst, stage)
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not failure; recovery picks the instance up.
			return false
		}
		o.fail(ctx, inst, stage, err)
		return false
	}

	events := []audit.Event{stageCompleteEvent(inst, stage)}
	if stage == StageDetect && inst.Checkpoint.Detect.HaltRequired {
		events = append(events, haltEvent(inst))
	}
	if stage == StageSign {
		events = append(events, signedEvent(inst))
	}

	if err := o.store.save(ctx, inst, events...); err != nil {
		o.logger.Error("stage checkpoint persist failed",
			"instance", inst.ID,
			"stage", stage,
			"error", err)
		return false
	}

	o.logger.Info("stage complete",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"stage", stage,
		"attempts", inst.Attempts[stage])
	return true
}

// suspendForReview evaluates the gate after detect. Low-risk instances
// receive the synthetic auto-approval and continue; gated instances park
// in awaiting_review until the dispatcher delivers a decision.
func (o *Orchestrator) suspendForReview(ctx context.Context, inst *Instance) bool {
	if inst.Checkpoint.Decision != nil {
		return false
	}

	detect := inst.Checkpoint.Detect
	if !detect.ReviewRequired {
		inst.Checkpoint.Decision = &hitl.Decision{
			Approved: true,
			Reviewer: "auto",
			Auto:     true,
		}
		if err := o.store.save(ctx, inst); err != nil {
			o.logger.Error("auto-approval persist failed", "instance", inst.ID, "error", err)
			return true
		}
		return false
	}

	// The ticket is opened before the instance leaves running: an
	// awaiting_review row without a ticket is invisible to both the
	// dispatcher and the recovery scan. Open is idempotent per
	// instance, so a crash after this call re-runs it harmlessly.
	sc := o.cfg.StageConfig(StageDetect)
	err := execute(ctx, sc.policy(), sc.timeout(), nil, func(openCtx context.Context) error {
		_, err := o.gate.Open(openCtx, inst.ClaimID, inst.ID, inst.Domain, detect.Risk, detect.ReviewReason)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown; the instance is still running and recovery
			// retries the gate.
			return true
		}
		o.fail(ctx, inst, StageDetect, fmt.Errorf("open review ticket: %w", err))
		return true
	}

	inst.Status = StatusAwaitingReview
	if err := o.store.save(ctx, inst); err != nil {
		o.logger.Error("suspend persist failed", "instance", inst.ID, "error", err)
		return true
	}

	o.logger.Info("instance awaiting review",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"risk", detect.Risk,
		"reason", detect.ReviewReason)
	return true
}

// Resume applies a review decision to a suspended instance. Redelivery
// is a no-op once the instance has left awaiting_review.
func (o *Orchestrator) Resume(ctx context.Context, instanceID uuid.UUID, decision hitl.Decision) error {
	inst, err := o.store.get(ctx, instanceID)
	if err != nil {
		return err
	}

	if inst.Status != StatusAwaitingReview {
		// A delivery can outrun the suspend transition when the ticket
		// was opened but the status flip has not persisted yet. That is
		// not a redelivery: error so the dispatcher retries next tick.
		if inst.Checkpoint.Decision == nil && !inst.Terminal() {
			return fmt.Errorf("instance %s has not suspended yet", instanceID)
		}
		return nil
	}

	inst.Checkpoint.Decision = &decision
	inst.Status = StatusRunning
	inst.Stage = StageSign
	if err := o.store.save(ctx, inst); err != nil {
		return fmt.Errorf("resume instance %s: %w", instanceID, err)
	}

	o.logger.Info("instance resumed",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"approved", decision.Approved,
		"reviewer", decision.Reviewer)

	go o.run(*inst)
	return nil
}

// Cancel flips a non-terminal instance to cancelled. The running stage
// observes the status at its next boundary.
func (o *Orchestrator) Cancel(ctx context.Context, claimID string) error {
	done, err := o.store.markCancelled(ctx, claimID)
	if err != nil {
		return err
	}
	if !done {
		return ErrNotRunning
	}

	o.ledger.Record(ctx, audit.NewEvent(claimID, audit.KindCancel, nil))
	o.logger.Info("instance cancelled", "claim", claimID)
	return nil
}

// Status returns the claims-facing view of a claim's latest instance.
func (o *Orchestrator) Status(ctx context.Context, claimID string) (*claims.PipelineStatus, error) {
	inst, err := o.store.byClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &claims.PipelineStatus{
		InstanceID: inst.ID,
		Stage:      string(inst.Stage),
		Status:     inst.Status,
		LastError:  inst.LastError,
		UpdatedAt:  inst.UpdatedAt,
	}, nil
}

// Proof returns the signed proof bundle for a completed claim.
func (o *Orchestrator) Proof(ctx context.Context, claim *claims.Claim) (json.RawMessage, error) {
	var cached evidence.Record
	if err := o.cache.GetJSON(ctx, cache.ProofKey(claim.ID), &cached); err == nil {
		return cached.Bundle, nil
	}

	inst, err := o.store.byClaim(ctx, claim.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, claims.ErrNoProof
		}
		return nil, err
	}
	if inst.Checkpoint.Sign == nil {
		return nil, claims.ErrNoProof
	}

	rec, err := o.evidence.Get(ctx, inst.Domain, inst.ID, inst.Checkpoint.Sign.ProofID)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, claims.ErrNoProof
		}
		return nil, fmt.Errorf("load proof for %s: %w", claim.ID, err)
	}

	o.cache.SetJSON(ctx, cache.ProofKey(claim.ID), rec)
	return rec.Bundle, nil
}

func (o *Orchestrator) complete(ctx context.Context, inst *Instance) {
	inst.Status = StatusCompleted
	if err := o.store.save(ctx, inst); err != nil {
		o.logger.Error("completion persist failed", "instance", inst.ID, "error", err)
		return
	}

	o.logger.Info("instance completed",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"proof", inst.Checkpoint.Sign.ProofID)
}

func (o *Orchestrator) fail(ctx context.Context, inst *Instance, stage Stage, cause error) {
	inst.Status = StatusFailed
	inst.LastError = cause.Error()

	if err := o.store.save(ctx, inst); err != nil {
		o.logger.Error("failure persist failed", "instance", inst.ID, "error", err)
	}

	o.ledger.Record(ctx, audit.NewEvent(inst.ClaimID, audit.KindStageFail, map[string]any{
		"instance": inst.ID,
		"stage":    stage,
		"attempts": inst.Attempts[stage],
		"error":    cause.Error(),
	}))

	o.logger.Error("instance failed",
		"instance", inst.ID,
		"claim", inst.ClaimID,
		"stage", stage,
		"error", cause)
}

// cancelled checks the persisted status at a stage boundary.
func (o *Orchestrator) cancelled(ctx context.Context, inst *Instance) bool {
	status, err := o.store.status(ctx, inst.ID)
	if err != nil {
		o.logger.Error("status check failed", "instance", inst.ID, "error", err)
		return true
	}
	if status == StatusCancelled {
		o.logger.Info("instance stopped at cancel boundary",
			"instance", inst.ID,
			"claim", inst.ClaimID,
			"stage", inst.Stage)
		return true
	}
	inst.Status = status
	return false
}

func stageCompleteEvent(inst *Instance, stage Stage) audit.Event {
	return audit.NewEvent(inst.ClaimID, audit.KindStageComplete, map[string]any{
		"instance": inst.ID,
		"stage":    stage,
		"attempts": inst.Attempts[stage],
	})
}

func haltEvent(inst *Instance) audit.Event {
	detect := inst.Checkpoint.Detect
	snap := inst.Checkpoint.Verify.Snapshot
	return audit.NewEvent(inst.ClaimID, audit.KindHaltTriggered, map[string]any{
		"instance":       inst.ID,
		"flags":          detect.Flags,
		"trust_score":    detect.TrustScore,
		"variance":       snap.VarianceHalt,
		"constitutional": snap.ConstitutionalHalt,
	})
}
