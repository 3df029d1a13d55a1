package hitl

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aegisproof/aegis/pkg/handlers"
	"github.com/aegisproof/aegis/pkg/routes"
)

// Handler provides HTTP endpoints for reviewer decisions and the
// pending review queue. Mounted under the claims prefix so decision
// routes address claims directly.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler for the review gate.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "hitl"),
	}
}

// Routes returns the route group definition for review endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/claims",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{id}/approve", Handler: h.Approve},
			{Method: "POST", Pattern: "/{id}/reject", Handler: h.Reject},
		},
	}
}

// QueueRoutes returns the route group for the pending review queue.
func (h *Handler) QueueRoutes() routes.Group {
	return routes.Group{
		Prefix: "/reviews",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Pending},
		},
	}
}

type decisionRequest struct {
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
}

// Approve resolves the pending review for a claim as approved.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// Reject resolves the pending review for a claim as rejected.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, approved bool) {
	var req decisionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reviewer == "" {
		req.Reviewer = "unknown"
	}

	ticket, err := h.sys.ResolveByClaim(r.Context(), r.PathValue("id"), Decision{
		Approved: approved,
		Reviewer: req.Reviewer,
		Note:     req.Note,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, ticket)
}

// Pending returns awaiting tickets oldest first.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	tickets, err := h.sys.ListPending(r.Context(), limit)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, tickets)
}
