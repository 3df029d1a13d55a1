package hitl

import (
	"context"
	"fmt"
	"time"

	"github.com/aegisproof/aegis/pkg/lifecycle"
	"github.com/aegisproof/aegis/pkg/repository"
)

// Start launches the dispatcher loop. Each tick expires stale tickets
// and delivers undelivered decisions to the orchestrator. A ticket is
// marked delivered only after a successful resume; redelivery after a
// crash is absorbed by the orchestrator's idempotent Resume.
func (r *repo) Start(lc *lifecycle.Coordinator) error {
	if r.resumer == nil {
		return fmt.Errorf("review gate started without orchestrator binding")
	}

	r.logger.Info("starting review gate dispatcher",
		"window", r.cfg.Window,
		"interval", r.cfg.PollInterval)

	lc.OnStartup(func() {
		go r.dispatch(lc.Context())
	})

	return nil
}

func (r *repo) dispatch(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("review gate dispatcher stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *repo) tick(ctx context.Context) {
	if n, err := r.Expire(ctx, r.now()); err != nil {
		r.logger.Error("ticket expiry sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("tickets expired", "count", n)
	}

	tickets, err := r.undelivered(ctx)
	if err != nil {
		r.logger.Error("undelivered ticket query failed", "error", err)
		return
	}

	for _, t := range tickets {
		if err := r.deliver(ctx, t); err != nil {
			r.logger.Error("decision delivery failed",
				"ticket", t.ID,
				"claim", t.ClaimID,
				"error", err)
		}
	}
}

func (r *repo) undelivered(ctx context.Context) ([]Ticket, error) {
	q := `
		SELECT ` + ticketColumns + `
		FROM hitl_tickets
		WHERE status != $1 AND delivered = false
		ORDER BY decided_at
		LIMIT 50`

	return repository.QueryMany(ctx, r.db, q, []any{StatusAwaiting}, scanTicket)
}

func (r *repo) deliver(ctx context.Context, t Ticket) error {
	if err := r.resumer.Resume(ctx, t.InstanceID, t.Decision()); err != nil {
		return fmt.Errorf("resume instance %s: %w", t.InstanceID, err)
	}

	if err := repository.ExecExpectOne(
		ctx, r.db,
		`UPDATE hitl_tickets SET delivered = true WHERE id = $1 AND delivered = false`,
		t.ID,
	); err != nil {
		return fmt.Errorf("mark ticket %s delivered: %w", t.ID, err)
	}

	r.logger.Info("decision delivered",
		"ticket", t.ID,
		"claim", t.ClaimID,
		"status", t.Status)

	return nil
}
