package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aegisproof/aegis/pkg/canonical"
)

// casRetries bounds how many times a lost tip race is retried before the
// append fails.
const casRetries = 5

// Chain appends proof records to per-domain hash chains. Each domain has
// an independent linear history anchored at the genesis hash.
type Chain struct {
	store  Store
	logger *slog.Logger
}

// NewChain creates a Chain over the given store.
func NewChain(store Store, logger *slog.Logger) *Chain {
	return &Chain{
		store:  store,
		logger: logger.With("system", "chain"),
	}
}

// Append links a new record onto its domain chain. The compose callback
// receives the current chain head hash and returns the finished record;
// it is re-invoked when a concurrent append advances the tip between
// composition and the swap. Appends are idempotent across crash
// recovery: a record already committed is returned unchanged, and a
// record left durable without its tip swap has the swap finished before
// it is returned, so every returned record is reachable from the head.
func (c *Chain) Append(ctx context.Context, domain string, compose func(prevHash string) (*Record, error)) (*Record, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		tip, version, err := c.store.Tip(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("read tip for %s: %w", domain, err)
		}

		rec, err := compose(tip.Hash)
		if err != nil {
			return nil, err
		}

		if err := c.store.Put(ctx, rec); err != nil {
			if err != ErrExists {
				return nil, fmt.Errorf("store record %s: %w", rec.Key(), err)
			}
			existing, done, rerr := c.reconcile(ctx, domain, rec, tip, version)
			if rerr != nil {
				return nil, rerr
			}
			if done {
				return existing, nil
			}
			continue
		}

		next := &Tip{
			Domain:    domain,
			ProofID:   rec.ProofID,
			Hash:      rec.ProofHash,
			Height:    tip.Height + 1,
			UpdatedAt: rec.CreatedAt,
		}

		err = c.store.SetTip(ctx, domain, next, version)
		if err == nil {
			c.logger.Info("chain advanced",
				"domain", domain,
				"height", next.Height,
				"proof", rec.ProofID)
			return rec, nil
		}
		if err != ErrCASConflict {
			return nil, fmt.Errorf("advance tip for %s: %w", domain, err)
		}

		// Lost the race. The record never became the head and nothing
		// links to it, so unwind it and recompose against the winner.
		if derr := c.store.Delete(ctx, rec.Domain, rec.InstanceID, rec.ProofID); derr != nil && derr != ErrNotFound {
			return nil, fmt.Errorf("unwind record %s: %w", rec.Key(), derr)
		}
		c.logger.Warn("tip race lost, retrying", "domain", domain, "attempt", attempt+1)
	}

	return nil, fmt.Errorf("append to %s: %w", domain, ErrCASConflict)
}

// reconcile resolves a Put collision with a record left by an earlier
// run of the same instance. It reports done=true with the record to
// return, or done=false when the stale copy was unwound and the append
// must recompose against a fresh tip.
func (c *Chain) reconcile(ctx context.Context, domain string, rec *Record, tip *Tip, version string) (*Record, bool, error) {
	existing, err := c.store.Get(ctx, rec.Domain, rec.InstanceID, rec.ProofID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch existing record %s: %w", rec.Key(), err)
	}

	// Committed append replayed: the record is the current head.
	if existing.ProofHash == tip.Hash {
		return existing, true, nil
	}

	// The record is durable but the tip swap never happened (crash
	// between the archive write and the swap). Finish the swap.
	if existing.PreviousHash == tip.Hash {
		next := &Tip{
			Domain:    domain,
			ProofID:   existing.ProofID,
			Hash:      existing.ProofHash,
			Height:    tip.Height + 1,
			UpdatedAt: existing.CreatedAt,
		}

		err := c.store.SetTip(ctx, domain, next, version)
		if err == nil {
			c.logger.Info("chain tip reconciled",
				"domain", domain,
				"height", next.Height,
				"proof", existing.ProofID)
			return existing, true, nil
		}
		if err != ErrCASConflict {
			return nil, false, fmt.Errorf("advance tip for %s: %w", domain, err)
		}
		// A concurrent append took the head first; the record may now
		// be orphaned. Fall through to the reachability check.
	}

	reachable, err := c.reachable(ctx, domain, existing.ProofHash)
	if err != nil {
		return nil, false, err
	}
	if reachable {
		return existing, true, nil
	}

	// Orphaned by a lost race in an earlier run: unreachable from the
	// head and nothing links to it. Unwind so the retry rewrites it
	// against the current head.
	if err := c.store.Delete(ctx, existing.Domain, existing.InstanceID, existing.ProofID); err != nil && err != ErrNotFound {
		return nil, false, fmt.Errorf("unwind record %s: %w", existing.Key(), err)
	}
	return nil, false, nil
}

// reachable reports whether hash is on the committed chain, walking
// from the current head back to genesis.
func (c *Chain) reachable(ctx context.Context, domain, hash string) (bool, error) {
	tip, _, err := c.store.Tip(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("read tip for %s: %w", domain, err)
	}
	if tip.Height == 0 {
		return false, nil
	}

	records, err := c.store.List(ctx, domain, "", 0)
	if err != nil {
		return false, fmt.Errorf("list records for %s: %w", domain, err)
	}

	byHash := make(map[string]*Record, len(records))
	for _, rec := range records {
		byHash[rec.ProofHash] = rec
	}

	for h := tip.Hash; h != canonical.GenesisHash; {
		if h == hash {
			return true, nil
		}
		rec, ok := byHash[h]
		if !ok {
			return false, nil
		}
		h = rec.PreviousHash
	}
	return false, nil
}

// Tip returns the current head of a domain chain.
func (c *Chain) Tip(ctx context.Context, domain string) (*Tip, error) {
	tip, _, err := c.store.Tip(ctx, domain)
	return tip, err
}

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	Domain  string `json:"domain"`
	Height  int64  `json:"height"`
	Checked int    `json:"checked"`
	Valid   bool   `json:"valid"`
	Broken  string `json:"broken,omitempty"`
}

// Verify walks a domain chain from its tip back to genesis, checking
// that each record's bundle hashes to its recorded proof hash and that
// previous-hash links are unbroken.
func (c *Chain) Verify(ctx context.Context, domain string) (*VerifyResult, error) {
	tip, _, err := c.store.Tip(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("read tip for %s: %w", domain, err)
	}

	result := &VerifyResult{Domain: domain, Height: tip.Height, Valid: true}
	if tip.Height == 0 {
		return result, nil
	}

	records, err := c.store.List(ctx, domain, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", domain, err)
	}

	byHash := make(map[string]*Record, len(records))
	for _, rec := range records {
		byHash[rec.ProofHash] = rec
	}

	hash := tip.Hash
	for hash != canonical.GenesisHash {
		rec, ok := byHash[hash]
		if !ok {
			result.Valid = false
			result.Broken = hash
			return result, nil
		}

		if canonical.HashBytes(rec.Bundle) != rec.ProofHash {
			result.Valid = false
			result.Broken = rec.ProofHash
			return result, nil
		}

		result.Checked++
		hash = rec.PreviousHash
	}

	return result, nil
}

func genesisTip(domain string) *Tip {
	return &Tip{
		Domain: domain,
		Hash:   canonical.GenesisHash,
	}
}

func versionToken(n int) string {
	return fmt.Sprintf("v%d", n)
}

func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ProofID.String() < recs[j].ProofID.String()
	})
}
