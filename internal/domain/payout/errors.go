package payout

import (
	"errors"

	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
)

var (
	ErrNotFound           = apperr.NotFound("payout_batch_not_found", "payout batch not found")
	ErrNegativeBalance    = apperr.InsufficientBalance("negative_balance", "an outstanding clawback must be recovered before paying out")
	ErrBelowMinimum       = apperr.InsufficientBalance("below_minimum_payout", "due balance is below the minimum payout amount")
	ErrNothingClaimable   = apperr.InsufficientBalance("no_matured_commissions", "no matured commissions are available for payout")
	ErrBatchInFlight      = apperr.ConcurrencyConflict("payout_in_flight", "a payout for this beneficiary is already in progress")
	ErrRedemptionInFlight = apperr.ConcurrencyConflict("gift_card_in_flight", "a gift card redemption for this beneficiary is still pending")
	ErrAlreadyResolved    = apperr.ConcurrencyConflict("payout_already_resolved", "payout batch is already resolved")
	ErrNotDispatchable    = apperr.Validation("platform_balance_not_dispatchable", "platform balance is redeemed through gift cards")
	ErrRailUnavailable    = apperr.Validation("payout_method_unavailable", "payout method is not configured")
	ErrNotManual          = apperr.Validation("not_manual_payout", "only manual bank payouts can be completed by an operator")
	ErrTransferNotFound   = errors.New("transfer not found on rail")
	ErrLookupNotSupported = errors.New("rail does not support lookups")
	errTransferPending    = errors.New("transfer still pending on rail")
)
