package beneficiary

import "github.com/partnerlink/settlement-api/internal/pkg/apperr"

var (
	ErrNotFound            = apperr.NotFound("beneficiary_not_found", "beneficiary not found")
	ErrMissingDestination  = apperr.Validation("payout_destination_missing", "payout method requires destination details")
	ErrInvalidPayoutMethod = apperr.Validation("invalid_payout_method", "unknown payout method")
	ErrInvalidSplit        = apperr.Validation("invalid_split_percent", "split percent must be between 0 and 100")
	ErrAlreadyExists       = apperr.ConcurrencyConflict("beneficiary_exists", "beneficiary already exists")
)
