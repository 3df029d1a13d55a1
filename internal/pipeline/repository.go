package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/pkg/repository"
)

const instanceColumns = `
	id, claim_id, domain, priority, stage, status,
	attempts, last_error, checkpoint, created_at, updated_at`

// instanceStore is the persistence seam for pipeline instances. The
// orchestrator depends on it so tests can drive the stage loop without
// a database.
type instanceStore interface {
	create(ctx context.Context, inst *Instance) error
	get(ctx context.Context, id uuid.UUID) (*Instance, error)
	byClaim(ctx context.Context, claimID string) (*Instance, error)
	save(ctx context.Context, inst *Instance, events ...audit.Event) error
	markCancelled(ctx context.Context, claimID string) (bool, error)
	status(ctx context.Context, id uuid.UUID) (string, error)
	running(ctx context.Context) ([]Instance, error)
}

type store struct {
	db *sql.DB
}

func (s *store) create(ctx context.Context, inst *Instance) error {
	attempts, checkpoint, err := encodeState(inst)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO pipeline_instances(` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.ExecContext(ctx, q,
		inst.ID, inst.ClaimID, inst.Domain, inst.Priority,
		inst.Stage, inst.Status, attempts, inst.LastError,
		checkpoint, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return repository.MapError(fmt.Errorf("create instance: %w", err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *store) get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM pipeline_instances WHERE id = $1`

	inst, err := repository.QueryOne(ctx, s.db, q, []any{id}, scanInstance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}
	return &inst, nil
}

func (s *store) byClaim(ctx context.Context, claimID string) (*Instance, error) {
	q := `
		SELECT ` + instanceColumns + `
		FROM pipeline_instances
		WHERE claim_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	inst, err := repository.QueryOne(ctx, s.db, q, []any{claimID}, scanInstance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load instance for claim %s: %w", claimID, err)
	}
	return &inst, nil
}

// save persists the instance state. When events are given they are
// written in the same transaction, making checkpoint and audit trail
// atomic. Used with stage-complete and proof-signed, which must be
// durable before the stage reports success.
func (s *store) save(ctx context.Context, inst *Instance, events ...audit.Event) error {
	attempts, checkpoint, err := encodeState(inst)
	if err != nil {
		return err
	}

	inst.UpdatedAt = time.Now().UTC()

	q := `
		UPDATE pipeline_instances
		SET stage = $2, status = $3, attempts = $4, last_error = $5,
		    checkpoint = $6, updated_at = $7
		WHERE id = $1`

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if err := repository.ExecExpectOne(ctx, tx, q,
			inst.ID, inst.Stage, inst.Status, attempts,
			inst.LastError, checkpoint, inst.UpdatedAt,
		); err != nil {
			return struct{}{}, err
		}
		for _, ev := range events {
			if err := audit.Insert(ctx, tx, ev); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("save instance %s: %w", inst.ID, err)
	}
	return nil
}

// markCancelled flips a non-terminal instance to cancelled. Reports
// whether the transition happened.
func (s *store) markCancelled(ctx context.Context, claimID string) (bool, error) {
	q := `
		UPDATE pipeline_instances
		SET status = $2, updated_at = $3
		WHERE claim_id = $1 AND status IN ($4, $5)`

	res, err := s.db.ExecContext(ctx, q,
		claimID, StatusCancelled, time.Now().UTC(),
		StatusRunning, StatusAwaitingReview,
	)
	if err != nil {
		return false, fmt.Errorf("cancel instance for %s: %w", claimID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// status reads just the status column, used at stage boundaries to
// observe cancellation without reloading the checkpoint.
func (s *store) status(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM pipeline_instances WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read instance status: %w", err)
	}
	return status, nil
}

// running returns instances that were mid-flight, for crash recovery.
func (s *store) running(ctx context.Context) ([]Instance, error) {
	q := `
		SELECT ` + instanceColumns + `
		FROM pipeline_instances
		WHERE status = $1
		ORDER BY created_at`

	return repository.QueryMany(ctx, s.db, q, []any{StatusRunning}, scanInstance)
}

func encodeState(inst *Instance) ([]byte, []byte, error) {
	attempts, err := json.Marshal(inst.Attempts)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal attempts: %w", err)
	}
	checkpoint, err := json.Marshal(inst.Checkpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return attempts, checkpoint, nil
}

func scanInstance(sc repository.Scanner) (Instance, error) {
	var (
		inst       Instance
		attempts   []byte
		checkpoint []byte
	)

	if err := sc.Scan(
		&inst.ID,
		&inst.ClaimID,
		&inst.Domain,
		&inst.Priority,
		&inst.Stage,
		&inst.Status,
		&attempts,
		&inst.LastError,
		&checkpoint,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return inst, err
	}

	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &inst.Attempts); err != nil {
			return inst, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	if inst.Attempts == nil {
		inst.Attempts = make(map[Stage]int)
	}
	if len(checkpoint) > 0 {
		if err := json.Unmarshal(checkpoint, &inst.Checkpoint); err != nil {
			return inst, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
	}
	return inst, nil
}
