package balance

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/middleware"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get handles GET /api/v1/balance
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), middleware.GetBeneficiaryID(r.Context()))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, b)
}

// Ledger handles GET /api/v1/ledger
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	limit, offset := response.Page(r)
	entries, err := h.svc.Ledger(r.Context(), middleware.GetBeneficiaryID(r.Context()), limit+1, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}
	hasNext := len(entries) > limit
	if hasNext {
		entries = entries[:limit]
	}
	response.WithMeta(w, entries, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}

// Verify handles GET /api/admin/balances/{id}/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}
	report, err := h.svc.Verify(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, report)
}

// Recompute handles POST /api/admin/balances/{id}/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}
	b, err := h.svc.Recompute(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, b)
}

// Routes mounts beneficiary endpoints; the router must already run Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/balance", h.Get)
	r.Get("/ledger", h.Ledger)
}

// AdminRoutes mounts under /api/admin/balances
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Get("/{id}/verify", h.Verify)
	r.Post("/{id}/recompute", h.Recompute)
	return r
}
