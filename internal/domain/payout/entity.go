package payout

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Batch is one transfer covering every commission claimed for a beneficiary
// in a dispatch cycle. Its commission set never changes after the claim.
type Batch struct {
	ID                 uuid.UUID                `db:"id" json:"id"`
	BeneficiaryID      uuid.UUID                `db:"beneficiary_id" json:"beneficiary_id"`
	Method             beneficiary.PayoutMethod `db:"method" json:"method"`
	TotalAmount        int64                    `db:"total_amount" json:"total_amount"`
	ClaimedAmount      int64                    `db:"claimed_amount" json:"claimed_amount"`
	Currency           string                   `db:"currency" json:"currency"`
	Status             Status                   `db:"status" json:"status"`
	ExternalTransferID sql.NullString           `db:"external_transfer_id" json:"external_transfer_id,omitempty"`
	InstructionKey     sql.NullString           `db:"instruction_key" json:"-"`
	FailureReason      sql.NullString           `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt          time.Time                `db:"created_at" json:"created_at"`
	SubmittedAt        sql.NullTime             `db:"submitted_at" json:"submitted_at,omitempty"`
	ResolvedAt         sql.NullTime             `db:"resolved_at" json:"resolved_at,omitempty"`

	CommissionIDs []uuid.UUID `db:"-" json:"commission_ids,omitempty"`
	// InstructionURL is set on admin reads once the exported file exists.
	InstructionURL string `db:"-" json:"instruction_url,omitempty"`
}

// Result is what a withdrawal request or sweep reports per beneficiary.
type Result struct {
	BatchID            uuid.UUID                `json:"batch_id"`
	BeneficiaryID      uuid.UUID                `json:"beneficiary_id"`
	Method             beneficiary.PayoutMethod `json:"method"`
	Status             Status                   `json:"status"`
	Amount             int64                    `json:"amount"`
	Currency           string                   `json:"currency"`
	CommissionCount    int                      `json:"commission_count"`
	ExternalTransferID string                   `json:"external_transfer_id,omitempty"`
	Reason             string                   `json:"reason,omitempty"`
}

func resultOf(b *Batch) *Result {
	return &Result{
		BatchID:            b.ID,
		BeneficiaryID:      b.BeneficiaryID,
		Method:             b.Method,
		Status:             b.Status,
		Amount:             b.TotalAmount,
		Currency:           b.Currency,
		CommissionCount:    len(b.CommissionIDs),
		ExternalTransferID: b.ExternalTransferID.String,
		Reason:             b.FailureReason.String,
	}
}

// TransferStatus is a rail's view of a transfer.
type TransferStatus string

const (
	TransferPaid    TransferStatus = "PAID"
	TransferPending TransferStatus = "PENDING"
	TransferFailed  TransferStatus = "FAILED"
)

// TransferRequest is what a rail needs to move a batch.
type TransferRequest struct {
	BatchID       uuid.UUID
	BeneficiaryID uuid.UUID
	Destination   string
	AccountName   string
	Amount        int64
	Currency      string
	CommissionIDs []uuid.UUID
	CreatedAt     time.Time
}

type TransferResult struct {
	ExternalID    string
	Status        TransferStatus
	FailureReason string
}

// SweepError is one beneficiary that could not be processed.
type SweepError struct {
	BeneficiaryID uuid.UUID `json:"beneficiary_id"`
	BatchID       uuid.UUID `json:"batch_id,omitempty"`
	Reason        string    `json:"reason"`
}

// SweepReport summarizes a payout or reconcile run.
type SweepReport struct {
	Processed int          `json:"processed"`
	Pending   int          `json:"pending"`
	Failed    int          `json:"failed"`
	Errors    []SweepError `json:"errors"`
}

func (r *SweepReport) fail(beneficiaryID, batchID uuid.UUID, reason string) {
	r.Failed++
	r.Errors = append(r.Errors, SweepError{BeneficiaryID: beneficiaryID, BatchID: batchID, Reason: reason})
}
