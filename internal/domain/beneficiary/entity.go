package beneficiary

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind discriminates the parties that can be owed commission.
type Kind string

const (
	KindPartner            Kind = "PARTNER"
	KindSeller             Kind = "SELLER"
	KindOrganizationLeader Kind = "ORGANIZATION_LEADER"
)

// PayoutMethod selects the rail used to pay a beneficiary.
type PayoutMethod string

const (
	MethodConnectTransfer  PayoutMethod = "CONNECT_TRANSFER"
	MethodAggregatorPayout PayoutMethod = "AGGREGATOR_PAYOUT"
	MethodManualBank       PayoutMethod = "MANUAL_BANK"
	MethodPlatformBalance  PayoutMethod = "PLATFORM_BALANCE"
)

// maxUplineDepth bounds referral chain resolution.
const maxUplineDepth = 3

// Beneficiary is any party owed commission. Partners, sellers and
// organization leaders share this record and all balance and payout paths.
type Beneficiary struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	WorkspaceID          uuid.UUID       `db:"workspace_id" json:"workspace_id"`
	Kind                 Kind            `db:"kind" json:"kind"`
	DisplayName          string          `db:"display_name" json:"display_name"`
	Email                string          `db:"email" json:"email"`
	PayoutMethod         PayoutMethod    `db:"payout_method" json:"payout_method"`
	ConnectAccountID     sql.NullString  `db:"connect_account_id" json:"-"`
	AggregatorEmail      sql.NullString  `db:"aggregator_email" json:"-"`
	BankAccountName      sql.NullString  `db:"bank_account_name" json:"-"`
	BankIBAN             sql.NullString  `db:"bank_iban" json:"-"`
	OrganizationLeaderID uuid.NullUUID   `db:"organization_leader_id" json:"organization_leader_id,omitempty"`
	LeaderSplitPercent   decimal.Decimal `db:"leader_split_percent" json:"leader_split_percent"`
	ReferrerID           uuid.NullUUID   `db:"referrer_id" json:"referrer_id,omitempty"`
	ReferrerSplitPercent decimal.Decimal `db:"referrer_split_percent" json:"referrer_split_percent"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// SplitLevel is one upline party sharing a commission.
type SplitLevel struct {
	BeneficiaryID uuid.UUID       `json:"beneficiary_id"`
	Kind          Kind            `json:"kind"`
	Percent       decimal.Decimal `json:"percent"`
	// Depth is 1 for the direct beneficiary's own leader or referrer.
	Depth int `json:"depth"`
}

// Destination returns the rail address for the configured payout method.
func (b *Beneficiary) Destination() string {
	switch b.PayoutMethod {
	case MethodConnectTransfer:
		return b.ConnectAccountID.String
	case MethodAggregatorPayout:
		return b.AggregatorEmail.String
	case MethodManualBank:
		return b.BankIBAN.String
	}
	return ""
}

// MaskedDestination is safe for logs.
func (b *Beneficiary) MaskedDestination() string {
	d := b.Destination()
	if len(d) <= 4 {
		return d
	}
	return "****" + d[len(d)-4:]
}

// PayoutDetails is the destination data for a payout method change.
type PayoutDetails struct {
	ConnectAccountID string
	AggregatorEmail  string
	BankAccountName  string
	BankIBAN         string
}
