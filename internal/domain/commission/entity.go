package commission

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
)

// Status is the maturation state. Clawbacks are separate negative rows, the
// original keeps its status.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusProceed Status = "PROCEED"
	StatusPaid    Status = "PAID"
)

// Structure decides how many commissions a customer can produce.
type Structure string

const (
	StructureOneOff    Structure = "ONE_OFF"
	StructureRecurring Structure = "RECURRING"
)

type RewardType string

const (
	RewardSale RewardType = "SALE"
	RewardLead RewardType = "LEAD"
)

type RewardStructure string

const (
	RewardPercentage RewardStructure = "PERCENTAGE"
	RewardFlat       RewardStructure = "FLAT"
)

// Commission is one beneficiary's share of one conversion event.
// For every row: gross = net + platform_fee + split.
type Commission struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	WorkspaceID       uuid.UUID        `db:"workspace_id" json:"workspace_id"`
	BeneficiaryID     uuid.UUID        `db:"beneficiary_id" json:"beneficiary_id"`
	BeneficiaryKind   beneficiary.Kind `db:"beneficiary_kind" json:"beneficiary_kind"`
	SourceEventID     string           `db:"source_event_id" json:"source_event_id"`
	MissionID         uuid.UUID        `db:"mission_id" json:"mission_id"`
	CustomerID        string           `db:"customer_id" json:"customer_id"`
	Type              Structure        `db:"commission_type" json:"commission_type"`
	GrossAmount       int64            `db:"gross_amount" json:"gross_amount"`
	PlatformFeeAmount int64            `db:"platform_fee_amount" json:"platform_fee_amount"`
	SplitAmount       int64            `db:"split_amount" json:"split_amount"`
	NetAmount         int64            `db:"net_amount" json:"net_amount"`
	Currency          string           `db:"currency" json:"currency"`
	Status            Status           `db:"status" json:"status"`
	SplitOf           uuid.NullUUID    `db:"split_of" json:"split_of,omitempty"`
	ClawbackOf        uuid.NullUUID    `db:"clawback_of" json:"clawback_of,omitempty"`
	BatchID           uuid.NullUUID    `db:"batch_id" json:"batch_id,omitempty"`
	MaturesAt         time.Time        `db:"matures_at" json:"matures_at"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	MaturedAt         sql.NullTime     `db:"matured_at" json:"matured_at,omitempty"`
	PaidAt            sql.NullTime     `db:"paid_at" json:"paid_at,omitempty"`
}

// IsClawback reports whether c reverses another commission.
func (c *Commission) IsClawback() bool {
	return c.ClawbackOf.Valid
}

// ConversionEvent is a tracked sale or lead. It may be delivered more than once.
type ConversionEvent struct {
	ClickID       string    `json:"click_id"`
	OrderID       string    `json:"order_id"`
	LeadID        string    `json:"lead_id"`
	CustomerID    string    `json:"customer_id" validate:"required"`
	BeneficiaryID uuid.UUID `json:"beneficiary_id" validate:"required"`
	WorkspaceID   uuid.UUID `json:"workspace_id" validate:"required"`
	Amount        int64     `json:"amount" validate:"gte=0"`
	Currency      string    `json:"currency" validate:"required,currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// SourceEventID is the idempotency key shared by every commission of the event.
func (e ConversionEvent) SourceEventID() string {
	if e.OrderID != "" {
		return "order:" + e.OrderID
	}
	if e.LeadID != "" {
		return "lead:" + e.LeadID
	}
	return ""
}

// MissionConfig is the reward program the conversion belongs to.
type MissionConfig struct {
	MissionID               uuid.UUID           `json:"mission_id" validate:"required"`
	RewardType              RewardType          `json:"reward_type" validate:"required,oneof=SALE LEAD"`
	CommissionStructure     Structure           `json:"commission_structure" validate:"required,oneof=ONE_OFF RECURRING"`
	RewardStructure         RewardStructure     `json:"reward_structure" validate:"required,oneof=PERCENTAGE FLAT"`
	Rate                    decimal.Decimal     `json:"rate"`
	FlatAmount              int64               `json:"flat_amount" validate:"gte=0"`
	HoldDays                *int                `json:"hold_days" validate:"omitempty,gte=0"`
	MaxRecurringOccurrences int                 `json:"max_recurring_occurrences" validate:"gte=0"`
	PlatformFeePercent      decimal.NullDecimal `json:"platform_fee_percent"`
	Currency                string              `json:"currency" validate:"required,currency"`
}

// Set is everything one conversion produces.
type Set struct {
	Direct *Commission   `json:"direct,omitempty"`
	Splits []*Commission `json:"splits,omitempty"`
	// SkipReason is set when the event produced no commission.
	SkipReason string `json:"skip_reason,omitempty"`
	// Duplicate marks a set that was already recorded by an earlier delivery.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Rows returns direct first, then splits.
func (s Set) Rows() []*Commission {
	if s.Direct == nil {
		return nil
	}
	return append([]*Commission{s.Direct}, s.Splits...)
}

// PlatformFee is the fee withheld from the event.
func (s Set) PlatformFee() int64 {
	if s.Direct == nil {
		return 0
	}
	return s.Direct.PlatformFeeAmount
}

// ListFilter narrows commission listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// SweepResult reports one maturation run.
type SweepResult struct {
	Matured int   `json:"matured"`
	Amount  int64 `json:"amount"`
	Chunks  int   `json:"chunks"`
}
