package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// PostTx appends entries and applies the same deltas to the materialized
// balances inside tx. Every balance change in the system goes through here.
func (r *Repository) PostTx(ctx context.Context, tx *sqlx.Tx, entries ...Entry) error {
	rows := make([]Entry, 0, len(entries))
	now := time.Now().UTC()
	for _, e := range entries {
		if e.Amount == 0 {
			continue
		}
		switch e.Bucket {
		case BucketPending, BucketDue, BucketPaid, BucketFee:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownBucket, e.Bucket)
		}
		if e.ReferenceID == uuid.Nil || e.ReferenceType == "" {
			return ErrMissingRef
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		rows = append(rows, e)
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO ledger_entries (id, beneficiary_id, bucket, amount, entry_type, reference_type, reference_id, created_at)
		VALUES (:id, :beneficiary_id, :bucket, :amount, :entry_type, :reference_type, :reference_id, :created_at)
	`, rows); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}

	deltas := Deltas(rows)
	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	// stable order keeps concurrent posters from deadlocking on balance rows
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	for _, id := range ids {
		d := deltas[id]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO beneficiary_balances (beneficiary_id, pending, due, paid, fees, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (beneficiary_id) DO UPDATE SET
				pending = beneficiary_balances.pending + EXCLUDED.pending,
				due = beneficiary_balances.due + EXCLUDED.due,
				paid = beneficiary_balances.paid + EXCLUDED.paid,
				fees = beneficiary_balances.fees + EXCLUDED.fees,
				updated_at = now()
		`, id, d.Pending, d.Due, d.Paid, d.Fees); err != nil {
			return fmt.Errorf("apply balance delta: %w", err)
		}
	}
	return nil
}

const sumsQuery = `
	SELECT
		COALESCE(SUM(amount) FILTER (WHERE bucket = 'PENDING'), 0) AS pending,
		COALESCE(SUM(amount) FILTER (WHERE bucket = 'DUE'), 0) AS due,
		COALESCE(SUM(amount) FILTER (WHERE bucket = 'PAID'), 0) AS paid,
		COALESCE(SUM(amount) FILTER (WHERE bucket = 'FEE'), 0) AS fees
	FROM ledger_entries
	WHERE beneficiary_id = $1`

// Sums aggregates the ledger for one beneficiary.
func (r *Repository) Sums(ctx context.Context, beneficiaryID uuid.UUID) (Sums, error) {
	return sums(ctx, r.db, beneficiaryID)
}

// SumsTx is Sums inside a transaction, used when rebuilding balances.
func (r *Repository) SumsTx(ctx context.Context, tx *sqlx.Tx, beneficiaryID uuid.UUID) (Sums, error) {
	return sums(ctx, tx, beneficiaryID)
}

func sums(ctx context.Context, q sqlx.QueryerContext, beneficiaryID uuid.UUID) (Sums, error) {
	var s Sums
	if err := sqlx.GetContext(ctx, q, &s, sumsQuery, beneficiaryID); err != nil {
		return Sums{}, fmt.Errorf("sum ledger: %w", err)
	}
	return s, nil
}

func (r *Repository) List(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]Entry, error) {
	var entries []Entry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, beneficiary_id, bucket, amount, entry_type, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE beneficiary_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, beneficiaryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}
