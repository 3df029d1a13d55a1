package consensus

import (
	"context"
	"sync"
)

// Store persists voting sessions. Implementations must return ErrNotFound
// for unknown session ids.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *s
	clone.Votes = make(map[string]Vote, len(s.Votes))
	for k, v := range s.Votes {
		clone.Votes[k] = v
	}
	return &clone, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *s
	clone.Votes = make(map[string]Vote, len(s.Votes))
	for k, v := range s.Votes {
		clone.Votes[k] = v
	}
	m.sessions[s.ID] = &clone
	return nil
}
