// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/aegisproof/aegis/internal/config"
	"github.com/aegisproof/aegis/internal/infrastructure"
	"github.com/aegisproof/aegis/pkg/middleware"
	"github.com/aegisproof/aegis/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	auth := newAuthenticator(
		domain.Metering,
		cfg.API.OIDC.Issuer,
		cfg.API.OIDC.ClientID,
		runtime.Logger,
	)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime, auth)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(auth.Middleware())

	return m, nil
}
