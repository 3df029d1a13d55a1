package claims

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aegisproof/aegis/internal/audit"
	"github.com/aegisproof/aegis/pkg/handlers"
	"github.com/aegisproof/aegis/pkg/pagination"
	"github.com/aegisproof/aegis/pkg/routes"
)

// Handler provides HTTP endpoints for claim submission, status, proofs,
// and audit trails.
type Handler struct {
	sys        System
	ledger     audit.Ledger
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler for the claims system.
func NewHandler(sys System, ledger audit.Ledger, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		ledger:     ledger,
		logger:     logger.With("handler", "claims"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for claim endpoints.
// Approve and reject live with the review gate, not here.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/claims",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "GET", Pattern: "/{id}", Handler: h.Status},
			{Method: "GET", Pattern: "/{id}/proof", Handler: h.Proof},
			{Method: "GET", Pattern: "/{id}/audit", Handler: h.Audit},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
		},
	}
}

// Submit accepts a new claim and launches its verification pipeline.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidClaim)
		return
	}

	view, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, view)
}

// List returns a page of claims with optional search and filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Status returns a claim and its pipeline progress.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.sys.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, view)
}

// Proof returns the signed proof record for a completed claim.
func (h *Handler) Proof(w http.ResponseWriter, r *http.Request) {
	proof, err := h.sys.Proof(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(proof)
}

// Audit returns the ledger trail for a claim in insertion order.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sys.Find(r.Context(), r.PathValue("id")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	events, err := h.ledger.ByClaim(r.Context(), r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, events)
}

// Cancel requests cancellation of a claim's running pipeline.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.sys.Cancel(r.Context(), r.PathValue("id")); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
