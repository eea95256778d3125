package giftcard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/partnerlink/settlement-api/internal/middleware"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type RedeemRequest struct {
	CardType string `json:"card_type" validate:"required,card_type"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

// Redeem handles POST /api/v1/gift-cards
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	res, err := h.service.Request(r.Context(), middleware.GetBeneficiaryID(r.Context()), req.CardType, req.Amount)
	if err != nil {
		if res != nil && apperr.KindOf(err) == apperr.KindExternalTransferAmbiguous {
			response.Accepted(w, res)
			return
		}
		response.FromError(w, err)
		return
	}
	if res.Status == StatusDelivered {
		response.Created(w, res)
		return
	}
	response.Accepted(w, res)
}

// List handles GET /api/v1/gift-cards
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := response.Page(r)
	items, err := h.service.ListByBeneficiary(r.Context(), middleware.GetBeneficiaryID(r.Context()), limit+1, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}
	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}
	response.WithMeta(w, items, response.Meta{Limit: limit, Offset: offset, HasNext: hasNext})
}

// Routes mounts beneficiary endpoints; the router must already run Auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/gift-cards", h.Redeem)
	r.Get("/gift-cards", h.List)
}
