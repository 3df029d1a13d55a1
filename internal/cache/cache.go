// Package cache provides a short-TTL fingerprint-to-artifact lookup over
// Redis. All writes are best-effort: failures are logged and never affect
// correctness, and misses fall through to the durable stores.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// ErrMiss is returned when a key is absent or the cache is unavailable.
var ErrMiss = errors.New("cache miss")

// System is the typed cache contract used by the pipeline fast path.
type System interface {
	Start(lc *lifecycle.Coordinator) error

	// SetJSON stores v under key with the configured TTL. Best-effort.
	SetJSON(ctx context.Context, key string, v any)

	// GetJSON loads key into v. Returns ErrMiss when absent or unavailable.
	GetJSON(ctx context.Context, key string, v any) error

	// Ping reports whether the cache answers.
	Ping(ctx context.Context) error
}

// SnapshotKey returns the cache key for a claim's consensus snapshot.
func SnapshotKey(claimID string) string {
	return "snapshot:" + claimID
}

// ProofKey returns the cache key for a claim's final proof record.
func ProofKey(claimID string) string {
	return "proof:" + claimID
}

type system struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache system from the given configuration. The connection
// is not verified until Start.
func New(cfg *Config, logger *slog.Logger) System {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &system{
		client: client,
		ttl:    cfg.TTLDuration(),
		logger: logger.With("system", "cache"),
	}
}

func (s *system) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting cache system")

	lc.OnStartup(func() {
		pingCtx, cancel := context.WithTimeout(lc.Context(), 5*time.Second)
		defer cancel()

		if err := s.client.Ping(pingCtx).Err(); err != nil {
			s.logger.Warn("cache ping failed; continuing degraded", "error", err)
			return
		}
		s.logger.Info("cache connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := s.client.Close(); err != nil {
			s.logger.Error("cache close failed", "error", err)
		}
	})

	return nil
}

func (s *system) SetJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (s *system) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return ErrMiss
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrMiss, err)
	}
	return nil
}

func (s *system) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
