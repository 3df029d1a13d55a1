// Package probe samples the health of the service's dependency fleet on
// an interval and serves the aggregate to the health endpoint.
package probe

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/gateway"
	"github.com/aegisproof/aegis/internal/vector"
	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// ComponentStatus is the latest sample for one dependency.
type ComponentStatus struct {
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Status is the aggregate fleet health.
type Status struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]ComponentStatus `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Prober samples dependency health on an interval.
type Prober struct {
	db       *sql.DB
	gateway  gateway.System
	vector   vector.System
	cache    cache.System
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	status Status
}

// New creates a Prober. Sampling begins on Start.
func New(
	db *sql.DB,
	gw gateway.System,
	vec vector.System,
	c cache.System,
	interval time.Duration,
	logger *slog.Logger,
) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Prober{
		db:       db,
		gateway:  gw,
		vector:   vec,
		cache:    c,
		interval: interval,
		logger:   logger.With("system", "probe"),
	}
}

// Start launches the sampling loop.
func (p *Prober) Start(lc *lifecycle.Coordinator) error {
	p.logger.Info("starting fleet prober", "interval", p.interval)

	lc.OnStartup(func() {
		p.sample(lc.Context())
		go p.loop(lc.Context())
	})

	return nil
}

// Status returns the latest aggregate sample.
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Prober) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sample(ctx)
		}
	}
}

func (p *Prober) sample(ctx context.Context) {
	components := map[string]ComponentStatus{
		"database": p.check(ctx, func(ctx context.Context) error {
			return p.db.PingContext(ctx)
		}),
		"cache": p.check(ctx, func(ctx context.Context) error {
			return p.cache.Ping(ctx)
		}),
		"vector": p.check(ctx, func(ctx context.Context) error {
			if !p.vector.Ready(ctx) {
				return errNotReady
			}
			return nil
		}),
		"gateway": p.check(ctx, func(ctx context.Context) error {
			if !p.gateway.Ready(ctx) {
				return errNotReady
			}
			return nil
		}),
	}

	healthy := true
	for name, c := range components {
		if !c.Healthy {
			healthy = false
			p.logger.Warn("dependency unhealthy", "component", name, "detail", c.Detail)
		}
	}

	p.mu.Lock()
	p.status = Status{
		Healthy:    healthy,
		Components: components,
		CheckedAt:  time.Now().UTC(),
	}
	p.mu.Unlock()
}

func (p *Prober) check(ctx context.Context, fn func(ctx context.Context) error) ComponentStatus {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := fn(checkCtx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentStatus{Healthy: false, Detail: err.Error(), LatencyMS: latency}
	}
	return ComponentStatus{Healthy: true, LatencyMS: latency}
}

var errNotReady = errors.New("not ready")
