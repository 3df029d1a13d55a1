package api

import (
	"net/http"

	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	runtime *Runtime,
	auth *authenticator,
) {
	evidenceHandler := evidence.NewHandler(
		runtime.Evidence,
		domain.Chain,
		runtime.Logger,
	)

	reviewRoutes := domain.HITL.Handler()

	routes.Register(
		mux,
		guarded(domain.Claims.Handler().Routes(), guards{
			"POST ": auth.metered,
		}),
		guarded(reviewRoutes.Routes(), guards{
			"POST /{id}/approve": auth.requireReviewer,
			"POST /{id}/reject":  auth.requireReviewer,
		}),
		guarded(reviewRoutes.QueueRoutes(), guards{
			"GET ": auth.requireReviewer,
		}),
		guarded(domain.Consensus.Handler().Routes(), guards{
			"POST /{session}/vote": auth.requireVoter,
		}),
		evidenceHandler.Routes(),
	)
}

type guards map[string]func(http.HandlerFunc) http.HandlerFunc

// guarded wraps individual routes in a group with access guards, keyed by
// "METHOD pattern".
func guarded(group routes.Group, g guards) routes.Group {
	for i, route := range group.Routes {
		if guard, ok := g[route.Method+" "+route.Pattern]; ok {
			group.Routes[i].Handler = guard(route.Handler)
		}
	}
	return group
}
