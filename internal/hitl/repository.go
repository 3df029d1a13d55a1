package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/pkg/repository"
)

const ticketColumns = `
	id, claim_id, instance_id, domain, risk, reason, status,
	reviewer, note, auto, decided_at, delivered, expires_at, created_at`

type repo struct {
	db      *sql.DB
	ledger  audit.Ledger
	logger  *slog.Logger
	cfg     *Config
	resumer Resumer
	now     func() time.Time
}

// New creates a review gate backed by Postgres.
func New(db *sql.DB, ledger audit.Ledger, cfg *Config, logger *slog.Logger) System {
	return &repo{
		db:     db,
		ledger: ledger,
		logger: logger.With("system", "hitl"),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Bind(resumer Resumer) {
	r.resumer = resumer
}

func (r *repo) Open(
	ctx context.Context,
	claimID string,
	instanceID uuid.UUID,
	domain, risk, reason string,
) (*Ticket, error) {
	now := r.now().UTC()

	q := `
		INSERT INTO hitl_tickets(
			id, claim_id, instance_id, domain, risk, reason, status,
			delivered, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
		ON CONFLICT (instance_id) DO NOTHING
		RETURNING ` + ticketColumns

	args := []any{
		uuid.New(),
		claimID,
		instanceID,
		domain,
		risk,
		reason,
		StatusAwaiting,
		now.Add(r.cfg.WindowDuration()),
		now,
	}

	t, err := repository.QueryOne(ctx, r.db, q, args, scanTicket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.byInstance(ctx, instanceID)
		}
		return nil, fmt.Errorf("open ticket for %s: %w", claimID, err)
	}

	r.ledger.Record(ctx, audit.NewEvent(claimID, audit.KindHITLOpen, map[string]any{
		"ticket": t.ID,
		"risk":   risk,
		"reason": reason,
	}))

	r.logger.Info("review ticket opened",
		"ticket", t.ID,
		"claim", claimID,
		"risk", risk,
		"expires", t.ExpiresAt)

	return &t, nil
}

func (r *repo) Resolve(ctx context.Context, ticketID uuid.UUID, decision Decision) (*Ticket, error) {
	status := StatusRejected
	if decision.Approved {
		status = StatusApproved
	}

	q := `
		UPDATE hitl_tickets
		SET status = $2, reviewer = $3, note = $4, auto = $5, decided_at = $6
		WHERE id = $1 AND status = $7
		RETURNING ` + ticketColumns

	args := []any{
		ticketID,
		status,
		decision.Reviewer,
		decision.Note,
		decision.Auto,
		r.now().UTC(),
		StatusAwaiting,
	}

	t, err := repository.QueryOne(ctx, r.db, q, args, scanTicket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, ferr := r.Find(ctx, ticketID); ferr != nil {
				return nil, ferr
			}
			return nil, ErrAlreadyResolved
		}
		return nil, fmt.Errorf("resolve ticket %s: %w", ticketID, err)
	}

	r.ledger.Record(ctx, audit.NewEvent(t.ClaimID, audit.KindHITLResolved, map[string]any{
		"ticket":   t.ID,
		"status":   t.Status,
		"reviewer": t.Reviewer,
		"auto":     t.Auto,
	}))

	r.logger.Info("review ticket resolved",
		"ticket", t.ID,
		"claim", t.ClaimID,
		"status", t.Status,
		"reviewer", t.Reviewer)

	return &t, nil
}

func (r *repo) ResolveByClaim(ctx context.Context, claimID string, decision Decision) (*Ticket, error) {
	q := `
		SELECT ` + ticketColumns + `
		FROM hitl_tickets
		WHERE claim_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	t, err := repository.QueryOne(ctx, r.db, q, []any{claimID, StatusAwaiting}, scanTicket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingReview
		}
		return nil, fmt.Errorf("find pending ticket for %s: %w", claimID, err)
	}

	return r.Resolve(ctx, t.ID, decision)
}

func (r *repo) Find(ctx context.Context, ticketID uuid.UUID) (*Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM hitl_tickets WHERE id = $1`

	t, err := repository.QueryOne(ctx, r.db, q, []any{ticketID}, scanTicket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket %s: %w", ticketID, err)
	}
	return &t, nil
}

func (r *repo) ListPending(ctx context.Context, max int) ([]Ticket, error) {
	if max <= 0 {
		max = 50
	}

	q := `
		SELECT ` + ticketColumns + `
		FROM hitl_tickets
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`

	return repository.QueryMany(ctx, r.db, q, []any{StatusAwaiting, max}, scanTicket)
}

func (r *repo) Expire(ctx context.Context, now time.Time) (int, error) {
	q := `
		UPDATE hitl_tickets
		SET status = $1, reviewer = 'system', note = 'review window elapsed',
		    auto = true, decided_at = $2
		WHERE status = $3 AND expires_at <= $2
		RETURNING ` + ticketColumns

	expired, err := repository.QueryMany(ctx, r.db, q, []any{StatusExpired, now.UTC(), StatusAwaiting}, scanTicket)
	if err != nil {
		return 0, fmt.Errorf("expire tickets: %w", err)
	}

	for _, t := range expired {
		r.ledger.Record(ctx, audit.NewEvent(t.ClaimID, audit.KindHITLExpired, map[string]any{
			"ticket":  t.ID,
			"expired": t.ExpiresAt,
		}))
		r.logger.Warn("review ticket expired", "ticket", t.ID, "claim", t.ClaimID)
	}

	return len(expired), nil
}

func (r *repo) byInstance(ctx context.Context, instanceID uuid.UUID) (*Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM hitl_tickets WHERE instance_id = $1`

	t, err := repository.QueryOne(ctx, r.db, q, []any{instanceID}, scanTicket)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket for instance %s: %w", instanceID, err)
	}
	return &t, nil
}

func scanTicket(s repository.Scanner) (Ticket, error) {
	var (
		t         Ticket
		reviewer  sql.NullString
		note      sql.NullString
		decidedAt sql.NullTime
	)

	err := s.Scan(
		&t.ID,
		&t.ClaimID,
		&t.InstanceID,
		&t.Domain,
		&t.Risk,
		&t.Reason,
		&t.Status,
		&reviewer,
		&note,
		&t.Auto,
		&decidedAt,
		&t.Delivered,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		return t, err
	}

	t.Reviewer = reviewer.String
	t.Note = note.String
	if decidedAt.Valid {
		decided := decidedAt.Time
		t.DecidedAt = &decided
	}
	return t, nil
}
