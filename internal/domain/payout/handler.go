package payout

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/middleware"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

// CompleteRequest is the operator's confirmation of a manual bank transfer.
type CompleteRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
}

type FailRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

// RequestWithdrawal handles POST /api/v1/withdrawals
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), middleware.GetBeneficiaryID(r.Context()))
	if err != nil {
		if res != nil && apperr.KindOf(err) == apperr.KindExternalTransferAmbiguous {
			response.Accepted(w, res)
			return
		}
		response.FromError(w, err)
		return
	}
	if res.Status == StatusConfirmed {
		response.Created(w, res)
		return
	}
	response.Accepted(w, res)
}

// List handles GET /api/v1/payouts
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := response.Page(r)
	batches, err := h.dispatcher.ListByBeneficiary(r.Context(), middleware.GetBeneficiaryID(r.Context()), limit+1, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}
	hasNext := len(batches) > limit
	if hasNext {
		batches = batches[:limit]
	}
	response.WithMeta(w, batches, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}

// Complete handles POST /api/admin/payouts/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid payout id")
		return
	}
	var req CompleteRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.dispatcher.CompleteManual(r.Context(), id, req.Reference)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, res)
}

// Fail handles POST /api/admin/payouts/{id}/fail
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid payout id")
		return
	}
	var req FailRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.dispatcher.FailManual(r.Context(), id, req.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, res)
}

// Get handles GET /api/admin/payouts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid payout id")
		return
	}
	b, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, b)
}

// Routes mounts beneficiary endpoints; the router must already run Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/withdrawals", h.RequestWithdrawal)
	r.Get("/payouts", h.List)
}

// AdminRoutes mounts under /api/admin/payouts
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(adminMiddleware)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/fail", h.Fail)
	return r
}
