package giftcard

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Redemption converts due balance into a gift card. The balance is debited
// when the redemption is created and credited back if delivery fails.
type Redemption struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	BeneficiaryID uuid.UUID      `db:"beneficiary_id" json:"beneficiary_id"`
	CardType      string         `db:"card_type" json:"card_type"`
	Amount        int64          `db:"amount" json:"amount"`
	Currency      string         `db:"currency" json:"currency"`
	Status        Status         `db:"status" json:"status"`
	ExternalID    sql.NullString `db:"external_id" json:"external_id,omitempty"`
	FailureReason sql.NullString `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	ResolvedAt    sql.NullTime   `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Result is returned to the beneficiary.
type Result struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	CardType     string    `json:"card_type"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
}

func resultOf(r *Redemption) *Result {
	return &Result{
		RedemptionID: r.ID,
		CardType:     r.CardType,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Status:       r.Status,
		Reason:       r.FailureReason.String,
	}
}

// Fulfillment is the provider's view of a reward.
type Fulfillment struct {
	ExternalID    string
	Status        Status
	FailureReason string
}

type FulfillmentRequest struct {
	RedemptionID   uuid.UUID
	RecipientEmail string
	CardType       string
	Amount         int64
	Currency       string
}

type ReconcileError struct {
	BeneficiaryID uuid.UUID `json:"beneficiary_id"`
	RedemptionID  uuid.UUID `json:"redemption_id"`
	Reason        string    `json:"reason"`
}

type ReconcileReport struct {
	Processed int              `json:"processed"`
	Pending   int              `json:"pending"`
	Failed    int              `json:"failed"`
	Errors    []ReconcileError `json:"errors"`
}
