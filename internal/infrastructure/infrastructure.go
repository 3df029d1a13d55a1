// Package infrastructure provides core service initialization for application startup.
// It assembles the shared dependencies (logging, database, cache, vector index,
// evidence store, inference gateway) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/config"
	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/internal/gateway"
	"github.com/aegisproof/aegis/internal/vector"
	"github.com/aegisproof/aegis/pkg/database"
	"github.com/aegisproof/aegis/pkg/lifecycle"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, and the external dependency fleet.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Cache     cache.System
	Vector    vector.System
	Evidence  evidence.Store
	Gateway   gateway.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	vec, err := vector.New(&cfg.Vector, logger)
	if err != nil {
		return nil, fmt.Errorf("vector init failed: %w", err)
	}

	ev, err := evidence.NewBlobStore(&cfg.Evidence, logger)
	if err != nil {
		return nil, fmt.Errorf("evidence init failed: %w", err)
	}

	gw, err := gateway.New(&cfg.Gateway, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Cache:     cache.New(&cfg.Cache, logger),
		Vector:    vec,
		Evidence:  ev,
		Gateway:   gw,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Cache.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("cache start failed: %w", err)
	}
	if err := i.Vector.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("vector start failed: %w", err)
	}
	if err := i.Evidence.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("evidence start failed: %w", err)
	}
	return nil
}
