package evidence

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/aegisproof/aegis/pkg/handlers"
	"github.com/aegisproof/aegis/pkg/routes"
)

// Handler provides HTTP endpoints for proof record reads, range scans,
// and chain verification.
type Handler struct {
	store  Store
	chain  *Chain
	logger *slog.Logger
}

// NewHandler creates a Handler for the evidence store.
func NewHandler(store Store, chain *Chain, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		chain:  chain,
		logger: logger.With("handler", "evidence"),
	}
}

// Routes returns the route group definition for proof endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/proofs",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{domain}", Handler: h.List},
			{Method: "GET", Pattern: "/{domain}/tip", Handler: h.Tip},
			{Method: "GET", Pattern: "/{domain}/verify", Handler: h.Verify},
			{Method: "GET", Pattern: "/{domain}/{instance}/{proof}", Handler: h.Get},
		},
	}
}

// List returns proof records for a domain, optionally filtered by an
// ISO date prefix via the date query parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	recs, err := h.store.List(r.Context(), r.PathValue("domain"), r.URL.Query().Get("date"), limit)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if recs == nil {
		recs = []*Record{}
	}
	handlers.RespondJSON(w, http.StatusOK, recs)
}

// Get returns a single proof record.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(r.PathValue("instance"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidKey)
		return
	}
	proofID, err := uuid.Parse(r.PathValue("proof"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidKey)
		return
	}

	rec, err := h.store.Get(r.Context(), r.PathValue("domain"), instanceID, proofID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec)
}

// Tip returns the current head of a domain chain.
func (h *Handler) Tip(w http.ResponseWriter, r *http.Request) {
	tip, err := h.chain.Tip(r.Context(), r.PathValue("domain"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, tip)
}

// Verify walks a domain chain and reports its integrity.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.chain.Verify(r.Context(), r.PathValue("domain"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
