package beneficiary

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/pkg/response"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /api/admin/beneficiaries
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	b, err := h.svc.Create(r.Context(), req.toEntity())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, toResponse(b))
}

// Get handles GET /api/admin/beneficiaries/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}

	b, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, toResponse(b))
}

// SetPayoutMethod handles PUT /api/admin/beneficiaries/{id}/payout-method
func (h *Handler) SetPayoutMethod(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid beneficiary id")
		return
	}

	var req PayoutMethodRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	b, err := h.svc.SetPayoutMethod(r.Context(), id, PayoutMethod(req.PayoutMethod), PayoutDetails{
		ConnectAccountID: req.ConnectAccountID,
		AggregatorEmail:  req.AggregatorEmail,
		BankAccountName:  req.BankAccountName,
		BankIBAN:         req.BankIBAN,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, toResponse(b))
}

// AdminRoutes mounts under /api/admin/beneficiaries
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/payout-method", h.SetPayoutMethod)
	return r
}
