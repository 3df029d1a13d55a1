package metering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegisproof/aegis/pkg/repository"
)

// System is the metering contract used by the API auth middleware and
// the claim submission path.
type System interface {
	// Authenticate resolves a raw API key to its principal.
	Authenticate(ctx context.Context, key string) (*Principal, error)

	// Check enforces the daily quota for a claim submission. Free keys
	// over quota fail with ErrQuotaExceeded; pro keys over their
	// included volume fail with PaymentRequiredError; enterprise keys
	// are unlimited.
	Check(ctx context.Context, p *Principal) error

	// RecordUsage counts one claim submission. Best-effort.
	RecordUsage(ctx context.Context, p *Principal)
}

type system struct {
	db     *sql.DB
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Postgres-backed metering system.
func New(db *sql.DB, cfg *Config, logger *slog.Logger) System {
	return &system{
		db:     db,
		cfg:    cfg,
		logger: logger.With("system", "metering"),
		now:    time.Now,
	}
}

func (s *system) Authenticate(ctx context.Context, key string) (*Principal, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	q := `
		SELECT key, name, role, tier, disabled, created_at
		FROM api_keys
		WHERE key = $1`

	p, err := repository.QueryOne(ctx, s.db, q, []any{key}, scanPrincipal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if p.Disabled {
		return nil, ErrUnauthorized
	}

	return &p, nil
}

func (s *system) Check(ctx context.Context, p *Principal) error {
	if p.Tier == TierEnterprise {
		return nil
	}

	used, err := s.usageToday(ctx, p.Key)
	if err != nil {
		return fmt.Errorf("read usage for %s: %w", p.Name, err)
	}

	switch p.Tier {
	case TierFree:
		if used >= s.cfg.FreeDailyQuota {
			return ErrQuotaExceeded
		}
	case TierPro:
		if used >= s.cfg.ProDailyQuota {
			return &PaymentRequiredError{
				Price:    s.cfg.OveragePrice,
				Currency: s.cfg.OverageCurrency,
			}
		}
	}
	return nil
}

func (s *system) RecordUsage(ctx context.Context, p *Principal) {
	day := s.now().UTC().Truncate(24 * time.Hour)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_usage(key, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key, day) DO UPDATE SET count = api_usage.count + 1`,
		p.Key, day,
	)
	if err != nil {
		s.logger.Warn("usage write failed", "key", p.Name, "error", err)
	}
}

func (s *system) usageToday(ctx context.Context, key string) (int, error) {
	day := s.now().UTC().Truncate(24 * time.Hour)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM api_usage WHERE key = $1 AND day = $2`,
		key, day,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func scanPrincipal(sc repository.Scanner) (Principal, error) {
	var p Principal
	err := sc.Scan(&p.Key, &p.Name, &p.Role, &p.Tier, &p.Disabled, &p.CreatedAt)
	return p, err
}
