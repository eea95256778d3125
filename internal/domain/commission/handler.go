package commission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partnerlink/settlement-api/internal/middleware"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /api/v1/commissions?status=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := response.Page(r)
	status := Status(r.URL.Query().Get("status"))
	switch status {
	case "", StatusPending, StatusProceed, StatusPaid:
	default:
		response.BadRequest(w, "status must be PENDING, PROCEED or PAID")
		return
	}

	rows, err := h.svc.ListByBeneficiary(r.Context(), middleware.GetBeneficiaryID(r.Context()), ListFilter{
		Status: status,
		Limit:  limit + 1,
		Offset: offset,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}
	response.WithMeta(w, rows, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}

// Routes mounts beneficiary endpoints; the router must already run Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/commissions", h.List)
}
