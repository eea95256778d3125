package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/commission"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
	"github.com/partnerlink/settlement-api/internal/pkg/response"
	"github.com/partnerlink/settlement-api/internal/pkg/signature"
	"github.com/partnerlink/settlement-api/internal/pkg/stripeconnect"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

const maxWebhookBody = 1 << 20

type Conversions interface {
	RecordConversion(ctx context.Context, ev commission.ConversionEvent, mission commission.MissionConfig) (*commission.Set, error)
	Clawback(ctx context.Context, sourceEventID, reason string) ([]*commission.Commission, error)
}

type PayoutNotifier interface {
	ConfirmExternal(ctx context.Context, batchID uuid.UUID, externalID string) (*payout.Result, error)
	FailExternal(ctx context.Context, batchID uuid.UUID, reason string) (*payout.Result, error)
}

type GiftCardNotifier interface {
	ConfirmExternal(ctx context.Context, id uuid.UUID, externalID string) (*giftcard.Result, error)
	FailExternal(ctx context.Context, id uuid.UUID, reason string) (*giftcard.Result, error)
}

type WebhookConfig struct {
	StripeSecret     string
	AggregatorSecret string
	ConversionSecret string
}

// WebhookHandler applies provider notifications. Every effect is idempotent
// on its own; processed_events only short-circuits redeliveries.
type WebhookHandler struct {
	events      EventStore
	conversions Conversions
	payouts     PayoutNotifier
	giftCards   GiftCardNotifier
	cfg         WebhookConfig
}

func NewWebhookHandler(events EventStore, conversions Conversions, payouts PayoutNotifier, giftCards GiftCardNotifier, cfg WebhookConfig) *WebhookHandler {
	return &WebhookHandler{
		events:      events,
		conversions: conversions,
		payouts:     payouts,
		giftCards:   giftCards,
		cfg:         cfg,
	}
}

// ConversionEnvelope is the body of POST /webhooks/conversions.
type ConversionEnvelope struct {
	ID         string                     `json:"id" validate:"required"`
	Type       string                     `json:"type" validate:"required,oneof=conversion.created conversion.refunded"`
	Conversion commission.ConversionEvent `json:"conversion"`
	Mission    *commission.MissionConfig  `json:"mission,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
}

// AggregatorEvent is the body of POST /webhooks/aggregator.
type AggregatorEvent struct {
	ID   string `json:"id" validate:"required"`
	Type string `json:"type" validate:"required"`
	Data struct {
		ID            string `json:"id"`
		Reference     string `json:"reference"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return nil, false
	}
	return body, true
}

// duplicate answers a redelivery without touching state.
func (h *WebhookHandler) duplicate(w http.ResponseWriter, r *http.Request, provider, eventID string) bool {
	seen, err := h.events.Seen(r.Context(), provider, eventID)
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Processed event lookup failed")
		response.InternalError(w)
		return true
	}
	if seen {
		metrics.Webhooks.WithLabelValues(provider, "duplicate").Inc()
		response.OK(w, map[string]string{"status": "duplicate"})
		return true
	}
	return false
}

func (h *WebhookHandler) processed(w http.ResponseWriter, r *http.Request, provider, eventID, eventType, status string) {
	if err := h.events.Record(r.Context(), provider, eventID, eventType); err != nil {
		// the effect is applied; a redelivery re-applies it as a no-op
		log.Warn().Err(err).Str("provider", provider).Str("event_id", eventID).Msg("Failed to record processed event")
	}
	metrics.Webhooks.WithLabelValues(provider, status).Inc()
	response.OK(w, map[string]string{"status": status})
}

// settled maps effect errors on rail notifications. Unknown references and
// state conflicts cannot improve with retries and are acknowledged.
func settled(err error) (status string, retry bool) {
	switch {
	case err == nil:
		return "processed", false
	case errors.Is(err, apperr.ErrNotFound):
		return "ignored", false
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		return "conflict", false
	}
	return "", true
}

// Stripe handles POST /webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	event, err := stripeconnect.ParseEvent(body, r.Header.Get("Stripe-Signature"), h.cfg.StripeSecret)
	if err != nil {
		metrics.Webhooks.WithLabelValues(ProviderStripe, "rejected").Inc()
		log.Warn().Err(err).Msg("Stripe webhook signature rejected")
		response.Unauthorized(w, "invalid signature")
		return
	}
	if h.duplicate(w, r, ProviderStripe, event.ID) {
		return
	}

	eventType := string(event.Type)
	switch eventType {
	case "transfer.created", "transfer.updated", "transfer.reversed":
	default:
		h.processed(w, r, ProviderStripe, event.ID, eventType, "ignored")
		return
	}

	t, err := stripeconnect.TransferFromEvent(event)
	if err != nil {
		response.BadRequest(w, "invalid transfer payload")
		return
	}
	batchID, err := uuid.Parse(t.Metadata[stripeconnect.MetadataBatchKey])
	if err != nil {
		h.processed(w, r, ProviderStripe, event.ID, eventType, "ignored")
		return
	}

	ctx := r.Context()
	if t.Reversed || eventType == "transfer.reversed" {
		_, err = h.payouts.FailExternal(ctx, batchID, "transfer_reversed")
		if errors.Is(err, apperr.ErrConcurrencyConflict) {
			log.Error().
				Str("batch_id", batchID.String()).
				Str("transfer_id", t.ID).
				Msg("Transfer reversed after payout confirmation, needs manual review")
		}
	} else {
		_, err = h.payouts.ConfirmExternal(ctx, batchID, t.ID)
	}

	status, retry := settled(err)
	if retry {
		metrics.Webhooks.WithLabelValues(ProviderStripe, "error").Inc()
		log.Error().Err(err).Str("event_id", event.ID).Msg("Stripe webhook effect failed")
		response.InternalError(w)
		return
	}
	h.processed(w, r, ProviderStripe, event.ID, eventType, status)
}

// Aggregator handles POST /webhooks/aggregator
func (h *WebhookHandler) Aggregator(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if !signature.Verify(body, r.Header.Get(signature.Header), h.cfg.AggregatorSecret) {
		metrics.Webhooks.WithLabelValues(ProviderAggregator, "rejected").Inc()
		response.Unauthorized(w, "invalid signature")
		return
	}

	var ev AggregatorEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(ev); errs != nil {
		response.ValidationError(w, errs)
		return
	}
	if h.duplicate(w, r, ProviderAggregator, ev.ID) {
		return
	}

	ref, err := uuid.Parse(ev.Data.Reference)
	if err != nil {
		h.processed(w, r, ProviderAggregator, ev.ID, ev.Type, "ignored")
		return
	}

	ctx := r.Context()
	reason := ev.Data.FailureReason
	switch ev.Type {
	case "payout.completed":
		_, err = h.payouts.ConfirmExternal(ctx, ref, ev.Data.ID)
	case "payout.failed":
		if reason == "" {
			reason = "aggregator_failed"
		}
		_, err = h.payouts.FailExternal(ctx, ref, reason)
	case "reward.completed":
		_, err = h.giftCards.ConfirmExternal(ctx, ref, ev.Data.ID)
	case "reward.failed":
		if reason == "" {
			reason = "reward_failed"
		}
		_, err = h.giftCards.FailExternal(ctx, ref, reason)
	default:
		h.processed(w, r, ProviderAggregator, ev.ID, ev.Type, "ignored")
		return
	}

	status, retry := settled(err)
	if retry {
		metrics.Webhooks.WithLabelValues(ProviderAggregator, "error").Inc()
		log.Error().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).Msg("Aggregator webhook effect failed")
		response.InternalError(w)
		return
	}
	if status == "conflict" {
		log.Error().Str("event_id", ev.ID).Str("type", ev.Type).Str("reference", ev.Data.Reference).
			Msg("Notification contradicts a resolved record, needs manual review")
	}
	h.processed(w, r, ProviderAggregator, ev.ID, ev.Type, status)
}

// Conversions handles POST /webhooks/conversions
func (h *WebhookHandler) Conversions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if !signature.Verify(body, r.Header.Get(signature.Header), h.cfg.ConversionSecret) {
		metrics.Webhooks.WithLabelValues(ProviderConversions, "rejected").Inc()
		response.Unauthorized(w, "invalid signature")
		return
	}

	var env ConversionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(env); errs != nil {
		response.ValidationError(w, errs)
		return
	}
	if h.duplicate(w, r, ProviderConversions, env.ID) {
		return
	}

	ctx := r.Context()
	switch env.Type {
	case "conversion.created":
		if env.Mission == nil {
			response.ValidationError(w, map[string]string{"mission": "This field is required"})
			return
		}
		set, err := h.conversions.RecordConversion(ctx, env.Conversion, *env.Mission)
		if err != nil {
			metrics.Webhooks.WithLabelValues(ProviderConversions, "error").Inc()
			response.FromError(w, err)
			return
		}
		if err := h.events.Record(ctx, ProviderConversions, env.ID, env.Type); err != nil {
			log.Warn().Err(err).Str("event_id", env.ID).Msg("Failed to record processed event")
		}
		metrics.Webhooks.WithLabelValues(ProviderConversions, "processed").Inc()
		response.OK(w, set)

	case "conversion.refunded":
		reason := env.Reason
		if reason == "" {
			reason = "refunded"
		}
		rows, err := h.conversions.Clawback(ctx, env.Conversion.SourceEventID(), reason)
		if err != nil {
			metrics.Webhooks.WithLabelValues(ProviderConversions, "error").Inc()
			response.FromError(w, err)
			return
		}
		if err := h.events.Record(ctx, ProviderConversions, env.ID, env.Type); err != nil {
			log.Warn().Err(err).Str("event_id", env.ID).Msg("Failed to record processed event")
		}
		metrics.Webhooks.WithLabelValues(ProviderConversions, "processed").Inc()
		response.OK(w, map[string]interface{}{"status": "processed", "clawbacks": rows})
	}
}

// WebhookRoutes mounts the provider endpoints; each verifies its own signature.
func (h *WebhookHandler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stripe", h.Stripe)
	r.Post("/aggregator", h.Aggregator)
	r.Post("/conversions", h.Conversions)
	return r
}
