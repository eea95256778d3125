package balance

import "github.com/partnerlink/settlement-api/internal/pkg/apperr"

var ErrNotFound = apperr.NotFound("beneficiary_not_found", "beneficiary not found")
