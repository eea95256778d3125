package balance

import (
	"time"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/ledger"
)

// Balance is the materialized per-beneficiary view of the ledger.
type Balance struct {
	BeneficiaryID uuid.UUID `db:"beneficiary_id" json:"beneficiary_id"`
	Pending       int64     `db:"pending" json:"pending"`
	Due           int64     `db:"due" json:"due"`
	Paid          int64     `db:"paid" json:"paid"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Negative reports an outstanding clawback that blocks payouts.
func (b Balance) Negative() bool {
	return b.Due < 0
}

// CommissionTotals are the commission-side sums the balance must agree with.
type CommissionTotals struct {
	Pending int64 `db:"pending"`
	Due     int64 `db:"due"`
}

// Report compares the materialized row against the ledger and commissions.
// Drift is reported, never corrected here.
type Report struct {
	BeneficiaryID uuid.UUID   `json:"beneficiary_id"`
	Balance       Balance     `json:"balance"`
	Ledger        ledger.Sums `json:"ledger"`
	Commissions   struct {
		Pending int64 `json:"pending"`
		Due     int64 `json:"due"`
	} `json:"commissions"`
	LedgerMatches  bool `json:"ledger_matches"`
	PendingMatches bool `json:"pending_matches"`
	// RedeemedAhead is the part of matured commissions already drawn down by
	// gift card redemptions; it is settled by the next payout batch.
	RedeemedAhead int64 `json:"redeemed_ahead"`
	Consistent    bool  `json:"consistent"`
}
