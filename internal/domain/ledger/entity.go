package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Bucket is the balance component an entry moves.
type Bucket string

const (
	BucketPending Bucket = "PENDING"
	BucketDue     Bucket = "DUE"
	BucketPaid    Bucket = "PAID"
	// BucketFee holds platform fee accounting on the platform account. It is
	// outside the pending/due/paid totals.
	BucketFee Bucket = "FEE"
)

type EntryType string

const (
	EntryCommissionAccrued EntryType = "COMMISSION_ACCRUED"
	EntryCommissionMatured EntryType = "COMMISSION_MATURED"
	EntryPayoutSent        EntryType = "PAYOUT_SENT"
	EntryClawback          EntryType = "CLAWBACK"
	EntryGiftCardRedeemed  EntryType = "GIFT_CARD_REDEEMED"
	EntryGiftCardReversed  EntryType = "GIFT_CARD_REVERSED"
	EntryPlatformFee       EntryType = "PLATFORM_FEE"
)

type ReferenceType string

const (
	RefCommission  ReferenceType = "COMMISSION"
	RefPayoutBatch ReferenceType = "PAYOUT_BATCH"
	RefGiftCard    ReferenceType = "GIFT_CARD_REDEMPTION"
)

// Entry is an immutable balance-affecting record. Bucket transfers are
// written as two legs of the same entry type.
type Entry struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	BeneficiaryID uuid.UUID     `db:"beneficiary_id" json:"beneficiary_id"`
	Bucket        Bucket        `db:"bucket" json:"bucket"`
	Amount        int64         `db:"amount" json:"amount"`
	EntryType     EntryType     `db:"entry_type" json:"entry_type"`
	ReferenceType ReferenceType `db:"reference_type" json:"reference_type"`
	ReferenceID   uuid.UUID     `db:"reference_id" json:"reference_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Ref identifies the record that justifies an entry.
type Ref struct {
	Type ReferenceType
	ID   uuid.UUID
}

// Credit is a single-leg entry.
func Credit(beneficiaryID uuid.UUID, bucket Bucket, amount int64, t EntryType, ref Ref) Entry {
	return Entry{
		BeneficiaryID: beneficiaryID,
		Bucket:        bucket,
		Amount:        amount,
		EntryType:     t,
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
	}
}

// Move transfers amount from one bucket to another. A negative amount moves
// the other way, which is how negative clawback rows mature.
func Move(beneficiaryID uuid.UUID, from, to Bucket, amount int64, t EntryType, ref Ref) []Entry {
	return []Entry{
		Credit(beneficiaryID, from, -amount, t, ref),
		Credit(beneficiaryID, to, amount, t, ref),
	}
}

// Sums are per-bucket ledger totals for one beneficiary.
type Sums struct {
	Pending int64 `db:"pending" json:"pending"`
	Due     int64 `db:"due" json:"due"`
	Paid    int64 `db:"paid" json:"paid"`
	Fees    int64 `db:"fees" json:"fees"`
}

// Total is pending + due + paid, which must equal the beneficiary's ledger sum.
func (s Sums) Total() int64 {
	return s.Pending + s.Due + s.Paid
}

func (s *Sums) add(bucket Bucket, amount int64) {
	switch bucket {
	case BucketPending:
		s.Pending += amount
	case BucketDue:
		s.Due += amount
	case BucketPaid:
		s.Paid += amount
	case BucketFee:
		s.Fees += amount
	}
}

// Deltas folds entries into per-beneficiary bucket changes.
func Deltas(entries []Entry) map[uuid.UUID]Sums {
	out := make(map[uuid.UUID]Sums)
	for _, e := range entries {
		s := out[e.BeneficiaryID]
		s.add(e.Bucket, e.Amount)
		out[e.BeneficiaryID] = s
	}
	return out
}
