package balance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
)

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

// Get reads the committed balance. A beneficiary without ledger activity has
// a zero balance; an unknown beneficiary is ErrNotFound.
func (r *Repository) Get(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error) {
	var b Balance
	err := r.db.GetContext(ctx, &b, `
		SELECT b.id AS beneficiary_id,
			COALESCE(bal.pending, 0) AS pending,
			COALESCE(bal.due, 0) AS due,
			COALESCE(bal.paid, 0) AS paid,
			COALESCE(bal.updated_at, b.created_at) AS updated_at
		FROM beneficiaries b
		LEFT JOIN beneficiary_balances bal ON bal.beneficiary_id = b.id
		WHERE b.id = $1
	`, beneficiaryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

// LockTx row-locks the balance for the rest of tx, creating it if needed.
// Withdrawal and redemption eligibility checks read through this.
func (r *Repository) LockTx(ctx context.Context, tx *sqlx.Tx, beneficiaryID uuid.UUID) (*Balance, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO beneficiary_balances (beneficiary_id, pending, due, paid, fees, updated_at)
		VALUES ($1, 0, 0, 0, 0, now())
		ON CONFLICT (beneficiary_id) DO NOTHING
	`, beneficiaryID); err != nil {
		return nil, fmt.Errorf("ensure balance: %w", err)
	}

	var b Balance
	if err := tx.GetContext(ctx, &b, `
		SELECT beneficiary_id, pending, due, paid, updated_at
		FROM beneficiary_balances
		WHERE beneficiary_id = $1
		FOR UPDATE
	`, beneficiaryID); err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	return &b, nil
}

// CommissionTotals sums net amounts of unmatured and matured-unpaid commissions.
func (r *Repository) CommissionTotals(ctx context.Context, beneficiaryID uuid.UUID) (CommissionTotals, error) {
	var t CommissionTotals
	err := r.db.GetContext(ctx, &t, `
		SELECT
			COALESCE(SUM(net_amount) FILTER (WHERE status = 'PENDING'), 0) AS pending,
			COALESCE(SUM(net_amount) FILTER (WHERE status = 'PROCEED'), 0) AS due
		FROM commissions
		WHERE beneficiary_id = $1
	`, beneficiaryID)
	if err != nil {
		return CommissionTotals{}, fmt.Errorf("sum commissions: %w", err)
	}
	return t, nil
}

// Recompute rebuilds the materialized row from the ledger.
func (r *Repository) Recompute(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error) {
	var out *Balance
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var known bool
		if err := tx.GetContext(ctx, &known, `
			SELECT EXISTS (SELECT 1 FROM beneficiaries WHERE id = $1)
		`, beneficiaryID); err != nil {
			return fmt.Errorf("check beneficiary: %w", err)
		}
		if !known {
			return ErrNotFound
		}
		if _, err := r.LockTx(ctx, tx, beneficiaryID); err != nil {
			return err
		}
		s, err := r.ledger.SumsTx(ctx, tx, beneficiaryID)
		if err != nil {
			return err
		}
		var b Balance
		if err := tx.GetContext(ctx, &b, `
			UPDATE beneficiary_balances
			SET pending = $2, due = $3, paid = $4, fees = $5, updated_at = now()
			WHERE beneficiary_id = $1
			RETURNING beneficiary_id, pending, due, paid, updated_at
		`, beneficiaryID, s.Pending, s.Due, s.Paid, s.Fees); err != nil {
			return fmt.Errorf("rewrite balance: %w", err)
		}
		out = &b
		return nil
	})
	return out, err
}
