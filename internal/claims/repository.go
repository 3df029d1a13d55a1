package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/pkg/pagination"
	"github.com/aegisproof/aegis/pkg/repository"
)

type repo struct {
	db           *sql.DB
	orchestrator Orchestrator
	ledger       audit.Ledger
	logger       *slog.Logger
	pagination   pagination.Config
}

// New creates a claims repository implementing the System interface.
func New(
	db *sql.DB,
	orchestrator Orchestrator,
	ledger audit.Ledger,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:           db,
		orchestrator: orchestrator,
		ledger:       ledger,
		logger:       logger.With("system", "claims"),
		pagination:   pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.ledger, r.logger, r.pagination)
}

func (r *repo) Submit(ctx context.Context, cmd SubmitCommand) (*StatusView, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	claim := cmd.Claim(time.Now().UTC())

	evidence, err := json.Marshal(claim.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}

	q := `
		INSERT INTO claims(id, text, evidence, domain, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, text, evidence, domain, priority, created_at, updated_at`

	args := []any{
		claim.ID,
		claim.Text,
		evidence,
		claim.Domain,
		claim.Priority,
		claim.CreatedAt,
		claim.UpdatedAt,
	}

	stored, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Claim, error) {
		return repository.QueryOne(ctx, tx, q, args, scanClaim)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.ledger.Record(ctx, audit.NewEvent(stored.ID, audit.KindSubmit, map[string]any{
		"domain":   stored.Domain,
		"priority": stored.Priority,
	}))

	instanceID, err := r.orchestrator.Launch(ctx, &stored)
	if err != nil {
		return nil, fmt.Errorf("launch pipeline for %s: %w", stored.ID, err)
	}

	r.logger.Info("claim accepted",
		"claim", stored.ID,
		"domain", stored.Domain,
		"instance", instanceID)

	status, err := r.orchestrator.Status(ctx, stored.ID)
	if err != nil {
		r.logger.Warn("pipeline status read failed", "claim", stored.ID, "error", err)
	}

	return &StatusView{Claim: &stored, Pipeline: status}, nil
}

func (r *repo) Find(ctx context.Context, id string) (*Claim, error) {
	q := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	c, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanClaim)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) Status(ctx context.Context, id string) (*StatusView, error) {
	claim, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	status, err := r.orchestrator.Status(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pipeline status for %s: %w", id, err)
	}

	return &StatusView{Claim: claim, Pipeline: status}, nil
}

func (r *repo) Proof(ctx context.Context, id string) (json.RawMessage, error) {
	claim, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	return r.orchestrator.Proof(ctx, claim)
}

func (r *repo) Cancel(ctx context.Context, id string) error {
	if _, err := r.Find(ctx, id); err != nil {
		return err
	}
	return r.orchestrator.Cancel(ctx, id)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Claim], error) {
	page.Normalize(r.pagination)

	lq := newListQuery(filters, page.Search)

	countSQL, countArgs := lq.count()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}

	pageSQL, pageArgs := lq.page(page.Sort, page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanClaim)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}
