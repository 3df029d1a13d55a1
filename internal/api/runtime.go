package api

import (
	"github.com/aegisproof/aegis/internal/config"
	"github.com/aegisproof/aegis/internal/infrastructure"
	"github.com/aegisproof/aegis/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Cache:     infra.Cache,
			Vector:    infra.Vector,
			Evidence:  infra.Evidence,
			Gateway:   infra.Gateway,
		},
		Pagination: cfg.API.Pagination,
	}
}
