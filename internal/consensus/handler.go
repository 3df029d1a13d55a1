package consensus

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aegisproof/aegis/pkg/handlers"
	"github.com/aegisproof/aegis/pkg/routes"
)

// Handler provides HTTP endpoints for external vote submission and
// snapshot reads.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler for the consensus system.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "consensus"),
	}
}

// Routes returns the route group definition for consensus endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/consensus",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{session}", Handler: h.Snapshot},
			{Method: "POST", Pattern: "/{session}/vote", Handler: h.SubmitVote},
		},
	}
}

// Snapshot returns the current consensus snapshot for a session.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sys.Snapshot(r.Context(), r.PathValue("session"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, snap)
}

// SubmitVote accepts an out-of-band vote for an open session.
func (h *Handler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	var vote Vote
	if err := json.NewDecoder(r.Body).Decode(&vote); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidVote)
		return
	}

	snap, err := h.sys.SubmitVote(r.Context(), r.PathValue("session"), vote)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, snap)
}
