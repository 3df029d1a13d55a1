package consensus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type engine struct {
	store  Store
	params Params
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a consensus engine over the given session store.
// All mutations of a session are serialized by session id, so concurrent
// vote submissions (pipeline fan-out plus out-of-band API votes) observe
// a consistent vote prefix.
func New(store Store, params Params, logger *slog.Logger) System {
	return &engine{
		store:  store,
		params: params,
		logger: logger.With("system", "consensus"),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (e *engine) Handler() *Handler {
	return NewHandler(e, e.logger)
}

func (e *engine) Open(ctx context.Context, id, domain string) (*Session, error) {
	lock := e.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s, err := e.store.Load(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	s = NewSession(id, domain)
	s.Snapshot = Compute(id, domain, nil, e.params)
	if err := e.store.Save(ctx, s); err != nil {
		return nil, err
	}

	e.logger.Info("session opened", "session", id, "domain", domain)
	return s, nil
}

func (e *engine) SubmitVote(ctx context.Context, sessionID string, v Vote) (*Snapshot, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if v.ReceivedAt.IsZero() {
		v.ReceivedAt = time.Now().UTC()
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Sealed {
		return nil, ErrSessionSealed
	}

	s.upsert(v)
	s.Snapshot = Compute(s.ID, s.Domain, s.VoteList(), e.params)

	if err := e.store.Save(ctx, s); err != nil {
		return nil, err
	}

	e.logger.Info(
		"vote recorded",
		"session", sessionID,
		"model", v.ModelID,
		"verdict", v.Verdict,
		"valid_votes", s.Snapshot.ValidVotes,
		"agreement", s.Snapshot.Agreement,
	)

	snap := s.Snapshot
	return &snap, nil
}

func (e *engine) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	s, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := s.Snapshot
	return &snap, nil
}

func (e *engine) Seal(ctx context.Context, sessionID string) (*Snapshot, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !s.Sealed {
		s.Sealed = true
		s.UpdatedAt = time.Now().UTC()
		if err := e.store.Save(ctx, s); err != nil {
			return nil, err
		}
		e.logger.Info(
			"session sealed",
			"session", sessionID,
			"final_verdict", s.Snapshot.FinalVerdict,
		)
	}

	// Sealed sessions refuse mutation, so the lock entry is no longer
	// needed; dropping it keeps the map bounded by open sessions.
	e.releaseLock(sessionID)

	snap := s.Snapshot
	return &snap, nil
}

func (e *engine) sessionLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

func (e *engine) releaseLock(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, id)
}
