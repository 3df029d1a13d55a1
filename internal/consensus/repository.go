package consensus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aegisproof/aegis/pkg/repository"
)

type pgStore struct {
	db *sql.DB
}

// NewStore creates a PostgreSQL-backed session store.
func NewStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (r *pgStore) Load(ctx context.Context, id string) (*Session, error) {
	q := `
		SELECT id, domain, votes, snapshot, sealed, created_at, updated_at
		FROM voting_sessions
		WHERE id = $1`

	s, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanSession)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

func (r *pgStore) Save(ctx context.Context, s *Session) error {
	votes, err := json.Marshal(s.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	snapshot, err := json.Marshal(s.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	q := `
		INSERT INTO voting_sessions(id, domain, votes, snapshot, sealed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET votes = EXCLUDED.votes,
		    snapshot = EXCLUDED.snapshot,
		    sealed = EXCLUDED.sealed,
		    updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(
		ctx, q,
		s.ID, s.Domain, votes, snapshot, s.Sealed, s.CreatedAt, s.UpdatedAt,
	); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func scanSession(sc repository.Scanner) (Session, error) {
	var (
		s        Session
		votes    []byte
		snapshot []byte
	)

	if err := sc.Scan(
		&s.ID,
		&s.Domain,
		&votes,
		&snapshot,
		&s.Sealed,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return s, err
	}

	if err := json.Unmarshal(votes, &s.Votes); err != nil {
		return s, fmt.Errorf("unmarshal votes: %w", err)
	}
	if err := json.Unmarshal(snapshot, &s.Snapshot); err != nil {
		return s, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if s.Votes == nil {
		s.Votes = make(map[string]Vote)
	}

	return s, nil
}
