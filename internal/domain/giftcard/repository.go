package giftcard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/partnerlink/settlement-api/internal/domain/balance"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
)

const columns = `id, beneficiary_id, card_type, amount, currency, status, external_id, failure_reason, created_at, resolved_at`

type Repository struct {
	db       *sqlx.DB
	balances *balance.Repository
	ledger   *ledger.Repository
}

func NewRepository(db *sqlx.DB, balances *balance.Repository, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, balances: balances, ledger: ledgerRepo}
}

// Create debits due and records a PENDING redemption. It shares the balance
// row lock with payout claims, so neither can spend the same due twice.
func (r *Repository) Create(ctx context.Context, red *Redemption) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		bal, err := r.balances.LockTx(ctx, tx, red.BeneficiaryID)
		if err != nil {
			return err
		}
		if bal.Negative() {
			return ErrNegativeBalance
		}
		if bal.Due < red.Amount {
			return ErrInsufficientDue.WithMessage("due %d does not cover %d", bal.Due, red.Amount)
		}

		// an open batch was sized against the current due
		var inFlight bool
		if err := tx.GetContext(ctx, &inFlight, `
			SELECT EXISTS (
				SELECT 1 FROM payout_batches
				WHERE beneficiary_id = $1 AND status IN ('CREATED', 'SUBMITTED')
			)
		`, red.BeneficiaryID); err != nil {
			return fmt.Errorf("check in-flight batches: %w", err)
		}
		if inFlight {
			return ErrPayoutInFlight
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO gift_card_redemptions (id, beneficiary_id, card_type, amount, currency, status, created_at)
			VALUES (:id, :beneficiary_id, :card_type, :amount, :currency, :status, :created_at)
		`, red); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		return r.ledger.PostTx(ctx, tx, ledger.Move(red.BeneficiaryID, ledger.BucketDue, ledger.BucketPaid, red.Amount,
			ledger.EntryGiftCardRedeemed, ledger.Ref{Type: ledger.RefGiftCard, ID: red.ID})...)
	})
}

func (r *Repository) RecordExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE gift_card_redemptions SET external_id = $2 WHERE id = $1 AND status = 'PENDING'
	`, id, externalID)
	if err != nil {
		return fmt.Errorf("record reward id: %w", err)
	}
	return nil
}

func (r *Repository) lock(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := tx.GetContext(ctx, &red, `SELECT `+columns+` FROM gift_card_redemptions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock redemption: %w", err)
	}
	return &red, nil
}

// MarkDelivered resolves a PENDING redemption. It returns false when the
// redemption was already delivered.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID, externalID string) (*Redemption, bool, error) {
	var (
		out     *Redemption
		changed bool
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		red, err := r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch red.Status {
		case StatusDelivered:
			out = red
			return nil
		case StatusFailed:
			return ErrAlreadyResolved
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE gift_card_redemptions
			SET status = 'DELIVERED', external_id = COALESCE(NULLIF($2, ''), external_id), resolved_at = $3
			WHERE id = $1
		`, id, externalID, now); err != nil {
			return fmt.Errorf("mark redemption delivered: %w", err)
		}
		red.Status = StatusDelivered
		red.ResolvedAt = sql.NullTime{Time: now, Valid: true}
		if externalID != "" {
			red.ExternalID = sql.NullString{String: externalID, Valid: true}
		}
		out, changed = red, true
		return nil
	})
	return out, changed, err
}

// Fail resolves a PENDING redemption as failed and credits the amount back
// to due. It returns false when the redemption had already failed.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, reason string) (*Redemption, bool, error) {
	var (
		out     *Redemption
		changed bool
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		red, err := r.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		switch red.Status {
		case StatusFailed:
			out = red
			return nil
		case StatusDelivered:
			return ErrAlreadyResolved
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE gift_card_redemptions SET status = 'FAILED', failure_reason = $2, resolved_at = $3
			WHERE id = $1
		`, id, reason, now); err != nil {
			return fmt.Errorf("mark redemption failed: %w", err)
		}
		if err := r.ledger.PostTx(ctx, tx, ledger.Move(red.BeneficiaryID, ledger.BucketPaid, ledger.BucketDue, red.Amount,
			ledger.EntryGiftCardReversed, ledger.Ref{Type: ledger.RefGiftCard, ID: red.ID})...); err != nil {
			return err
		}
		red.Status = StatusFailed
		red.FailureReason = sql.NullString{String: reason, Valid: true}
		red.ResolvedAt = sql.NullTime{Time: now, Valid: true}
		out, changed = red, true
		return nil
	})
	return out, changed, err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := r.db.GetContext(ctx, &red, `SELECT `+columns+` FROM gift_card_redemptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return &red, nil
}

func (r *Repository) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Redemption, error) {
	var out []*Redemption
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+` FROM gift_card_redemptions
		WHERE beneficiary_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, beneficiaryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return out, nil
}

// ListStale returns PENDING redemptions created before cutoff.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Redemption, error) {
	var out []*Redemption
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+` FROM gift_card_redemptions
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale redemptions: %w", err)
	}
	return out, nil
}
