package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aegisproof/aegis/pkg/repository"
)

// Ledger records and queries audit events.
type Ledger interface {
	// Record appends an event best-effort: failures are logged and
	// swallowed so the calling operation proceeds.
	Record(ctx context.Context, ev Event)

	// RecordDurable appends an event and returns any write error.
	// Used for stage-complete and proof-signed, which must be durable
	// before the operation reports success.
	RecordDurable(ctx context.Context, ev Event) error

	// ByClaim returns all events for a claim in insertion order.
	ByClaim(ctx context.Context, claimID string) ([]Event, error)
}

type ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Postgres-backed Ledger.
func New(db *sql.DB, logger *slog.Logger) Ledger {
	return &ledger{
		db:     db,
		logger: logger.With("system", "audit"),
	}
}

func (l *ledger) Record(ctx context.Context, ev Event) {
	if err := Insert(ctx, l.db, ev); err != nil {
		l.logger.Warn(
			"audit write failed",
			"kind", ev.Kind,
			"claim", ev.ClaimID,
			"error", err,
		)
	}
}

func (l *ledger) RecordDurable(ctx context.Context, ev Event) error {
	if err := Insert(ctx, l.db, ev); err != nil {
		return fmt.Errorf("durable audit write %s: %w", ev.Kind, err)
	}
	return nil
}

// Insert appends an event using the given executor. Callers that must
// persist an event atomically with other state pass their transaction.
func Insert(ctx context.Context, e repository.Executor, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = e.ExecContext(
		ctx,
		`INSERT INTO audit_events(id, claim_id, kind, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.ClaimID, ev.Kind, payload, ev.CreatedAt,
	)
	return err
}

func (l *ledger) ByClaim(ctx context.Context, claimID string) ([]Event, error) {
	q := `
		SELECT id, claim_id, kind, payload, created_at
		FROM audit_events
		WHERE claim_id = $1
		ORDER BY created_at, id`

	return repository.QueryMany(ctx, l.db, q, []any{claimID}, scanEvent)
}

func scanEvent(sc repository.Scanner) (Event, error) {
	var (
		ev      Event
		payload []byte
	)

	if err := sc.Scan(&ev.ID, &ev.ClaimID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
		return ev, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return ev, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return ev, nil
}
