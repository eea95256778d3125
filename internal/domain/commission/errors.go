package commission

import "github.com/partnerlink/settlement-api/internal/pkg/apperr"

var (
	ErrNotFound          = apperr.NotFound("commission_not_found", "commission not found")
	ErrMissingEventID    = apperr.Validation("missing_event_id", "conversion needs an order_id or lead_id")
	ErrCurrencyMismatch  = apperr.Validation("currency_mismatch", "conversion currency differs from the mission currency")
	ErrNegativeAmount    = apperr.Validation("negative_amount", "conversion amount must not be negative")
	ErrInvalidRate       = apperr.Validation("invalid_rate", "commission rate must be between 0 and 100")
	ErrInvalidFee        = apperr.Validation("invalid_fee", "platform fee must be between 0 and 100")
	ErrWorkspaceMismatch = apperr.Validation("workspace_mismatch", "beneficiary does not belong to the conversion workspace")
	ErrNothingToClawback = apperr.NotFound("no_commissions_for_event", "no commissions recorded for this event")
)
