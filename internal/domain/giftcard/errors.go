package giftcard

import (
	"errors"

	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
)

var (
	ErrNotFound           = apperr.NotFound("gift_card_not_found", "gift card redemption not found")
	ErrInvalidCardType    = apperr.Validation("invalid_card_type", "unsupported gift card type")
	ErrInvalidAmount      = apperr.Validation("invalid_amount", "gift card amount must be positive")
	ErrRecipientMissing   = apperr.Validation("gift_card_recipient_missing", "beneficiary has no email to deliver the gift card to")
	ErrNegativeBalance    = apperr.InsufficientBalance("negative_balance", "an outstanding clawback must be recovered before redeeming")
	ErrInsufficientDue    = apperr.InsufficientBalance("insufficient_due", "due balance does not cover the gift card amount")
	ErrPayoutInFlight     = apperr.ConcurrencyConflict("payout_in_flight", "a payout for this beneficiary is in progress")
	ErrUnavailable        = apperr.Validation("gift_cards_unavailable", "gift card redemption is not configured")
	ErrAlreadyResolved    = apperr.ConcurrencyConflict("gift_card_already_resolved", "gift card redemption is already resolved")
	ErrFulfillmentMissing = errors.New("reward not found at provider")
	errRewardPending      = errors.New("reward still pending at provider")
)
