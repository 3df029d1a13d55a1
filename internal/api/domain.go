package api

import (
	"fmt"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/internal/claims"
	"github.com/aegisproof/aegis/internal/config"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/internal/hitl"
	"github.com/aegisproof/aegis/internal/metering"
	"github.com/aegisproof/aegis/internal/pipeline"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Claims       claims.System
	Consensus    consensus.System
	HITL         hitl.System
	Metering     metering.System
	Orchestrator *pipeline.Orchestrator
	Chain        *evidence.Chain
	Ledger       audit.Ledger
}

// NewDomain creates all domain systems from the API runtime and registers
// the orchestrator and review dispatcher with the lifecycle coordinator.
// The review gate is bound to the orchestrator before either starts, so
// decision delivery is available from the first dispatcher tick.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()

	ledger := audit.New(db, runtime.Logger)

	consensusSystem := consensus.New(
		consensus.NewStore(db),
		cfg.Consensus.Params(),
		runtime.Logger,
	)

	chain := evidence.NewChain(runtime.Evidence, runtime.Logger)

	gate := hitl.New(db, ledger, &cfg.HITL, runtime.Logger)

	orchestrator := pipeline.New(
		db,
		consensusSystem,
		runtime.Gateway,
		runtime.Vector,
		chain,
		runtime.Evidence,
		runtime.Cache,
		ledger,
		gate,
		&cfg.Pipeline,
		runtime.Logger,
	)
	gate.Bind(orchestrator)

	if err := orchestrator.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("orchestrator start failed: %w", err)
	}
	if err := gate.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("review gate start failed: %w", err)
	}

	claimsSystem := claims.New(
		db,
		orchestrator,
		ledger,
		runtime.Logger,
		runtime.Pagination,
	)

	meteringSystem := metering.New(db, &cfg.Metering, runtime.Logger)

	return &Domain{
		Claims:       claimsSystem,
		Consensus:    consensusSystem,
		HITL:         gate,
		Metering:     meteringSystem,
		Orchestrator: orchestrator,
		Chain:        chain,
		Ledger:       ledger,
	}, nil
}
