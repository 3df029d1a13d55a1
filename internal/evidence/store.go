package evidence

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// Store is the append-only archive backing the proof chain.
// Put is write-once: a second write to the same key fails with ErrExists.
// SetTip performs a compare-and-swap on the domain tip: the caller passes
// the version token from the preceding Tip read, and a stale token fails
// with ErrCASConflict. An empty token means create-if-absent.
type Store interface {
	Start(lc *lifecycle.Coordinator) error

	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, domain string, instanceID, proofID uuid.UUID) (*Record, error)

	// Delete removes a record. Only the chain may call it, and only for
	// records that never became reachable from the domain tip.
	Delete(ctx context.Context, domain string, instanceID, proofID uuid.UUID) error

	// List returns records under a domain, optionally filtered by an
	// ISO date prefix (YYYY-MM-DD) on creation time, newest first.
	List(ctx context.Context, domain, datePrefix string, max int) ([]*Record, error)

	// Tip returns the domain chain tip and its version token. A domain
	// with no proofs yet returns a genesis tip and an empty token.
	Tip(ctx context.Context, domain string) (*Tip, string, error)
	SetTip(ctx context.Context, domain string, tip *Tip, version string) error
}

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	tips    map[string]*Tip
	vers    map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		tips:    make(map[string]*Tip),
		vers:    make(map[string]int),
	}
}

func (m *MemoryStore) Start(*lifecycle.Coordinator) error { return nil }

func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.Key()
	if _, ok := m.records[key]; ok {
		return ErrExists
	}

	clone := *rec
	m.records[key] = &clone
	return nil
}

func (m *MemoryStore) Get(_ context.Context, domain string, instanceID, proofID uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[Key(domain, instanceID, proofID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *MemoryStore) Delete(_ context.Context, domain string, instanceID, proofID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(domain, instanceID, proofID)
	if _, ok := m.records[key]; !ok {
		return ErrNotFound
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryStore) List(_ context.Context, domain, datePrefix string, max int) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for key, rec := range m.records {
		if !strings.HasPrefix(key, domain+"/") {
			continue
		}
		if datePrefix != "" && !strings.HasPrefix(rec.CreatedAt.UTC().Format("2006-01-02"), datePrefix) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}

	sortRecords(out)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (m *MemoryStore) Tip(_ context.Context, domain string) (*Tip, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip, ok := m.tips[domain]
	if !ok {
		return genesisTip(domain), "", nil
	}
	clone := *tip
	return &clone, versionToken(m.vers[domain]), nil
}

func (m *MemoryStore) SetTip(_ context.Context, domain string, tip *Tip, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := ""
	if _, ok := m.tips[domain]; ok {
		current = versionToken(m.vers[domain])
	}
	if version != current {
		return ErrCASConflict
	}

	clone := *tip
	m.tips[domain] = &clone
	m.vers[domain]++
	return nil
}
