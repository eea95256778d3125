package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/balance"
	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
)

const batchColumns = `id, beneficiary_id, method, total_amount, claimed_amount, currency, status,
	external_transfer_id, instruction_key, failure_reason, created_at, submitted_at, resolved_at`

// claimablePredicate selects matured, unclaimed commissions of alias c. An
// original with a clawback nets to zero against it and is never paid; a
// clawback only joins a batch once its original has been paid.
const claimablePredicate = `c.status = 'PROCEED' AND c.batch_id IS NULL
	AND NOT EXISTS (SELECT 1 FROM commissions cb WHERE cb.clawback_of = c.id)
	AND (c.clawback_of IS NULL OR EXISTS (
		SELECT 1 FROM commissions o WHERE o.id = c.clawback_of AND o.status = 'PAID'
	))`

type Repository struct {
	db       *sqlx.DB
	balances *balance.Repository
	ledger   *ledger.Repository
}

func NewRepository(db *sqlx.DB, balances *balance.Repository, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, balances: balances, ledger: ledgerRepo}
}

// ClaimRequest asks for a new batch for one beneficiary.
type ClaimRequest struct {
	BeneficiaryID uuid.UUID
	Method        beneficiary.PayoutMethod
	Currency      string
	MinAmount     int64
}

type claimedRow struct {
	ID        uuid.UUID `db:"id"`
	NetAmount int64     `db:"net_amount"`
}

type batchItem struct {
	BatchID      uuid.UUID `db:"batch_id"`
	CommissionID uuid.UUID `db:"commission_id"`
}

// Claim creates a CREATED batch holding every unclaimed PROCEED commission of
// the beneficiary. The balance row lock serializes claims, withdrawals and
// gift card redemptions for one beneficiary; the batch_id IS NULL predicate
// keeps claims disjoint. A pending gift card redemption blocks the claim
// until it resolves, since its reversal credits due back.
func (r *Repository) Claim(ctx context.Context, req ClaimRequest) (*Batch, error) {
	var batch *Batch
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		bal, err := r.balances.LockTx(ctx, tx, req.BeneficiaryID)
		if err != nil {
			return err
		}
		if bal.Negative() {
			return ErrNegativeBalance.WithMessage("due balance is %d", bal.Due)
		}
		if bal.Due <= 0 || bal.Due < req.MinAmount {
			return ErrBelowMinimum.WithMessage("due %d is below the minimum of %d", bal.Due, req.MinAmount)
		}

		var open struct {
			Batch      bool `db:"batch_open"`
			Redemption bool `db:"redemption_open"`
		}
		if err := tx.GetContext(ctx, &open, `
			SELECT
				EXISTS (
					SELECT 1 FROM payout_batches
					WHERE beneficiary_id = $1 AND status IN ('CREATED', 'SUBMITTED')
				) AS batch_open,
				EXISTS (
					SELECT 1 FROM gift_card_redemptions
					WHERE beneficiary_id = $1 AND status = 'PENDING'
				) AS redemption_open
		`, req.BeneficiaryID); err != nil {
			return fmt.Errorf("check in-flight work: %w", err)
		}
		if open.Batch {
			return ErrBatchInFlight
		}
		if open.Redemption {
			return ErrRedemptionInFlight
		}

		b := &Batch{
			ID:            uuid.New(),
			BeneficiaryID: req.BeneficiaryID,
			Method:        req.Method,
			Currency:      req.Currency,
			Status:        StatusCreated,
			CreatedAt:     time.Now().UTC(),
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO payout_batches (id, beneficiary_id, method, total_amount, claimed_amount, currency, status, created_at)
			VALUES (:id, :beneficiary_id, :method, 0, 0, :currency, :status, :created_at)
		`, b); err != nil {
			if database.IsUniqueViolation(err) {
				// one open batch per beneficiary is also enforced by an index
				return ErrBatchInFlight
			}
			return fmt.Errorf("insert payout batch: %w", err)
		}

		var claimed []claimedRow
		if err := tx.SelectContext(ctx, &claimed, `
			UPDATE commissions c
			SET batch_id = $2
			WHERE c.beneficiary_id = $1 AND `+claimablePredicate+`
			RETURNING c.id, c.net_amount
		`, req.BeneficiaryID, b.ID); err != nil {
			return fmt.Errorf("claim commissions: %w", err)
		}
		if len(claimed) == 0 {
			return ErrNothingClaimable
		}

		items := make([]batchItem, len(claimed))
		for i, c := range claimed {
			b.ClaimedAmount += c.NetAmount
			b.CommissionIDs = append(b.CommissionIDs, c.ID)
			items[i] = batchItem{BatchID: b.ID, CommissionID: c.ID}
		}
		// gift cards redeemed ahead of payout have already drawn due down
		b.TotalAmount = b.ClaimedAmount
		if bal.Due < b.TotalAmount {
			b.TotalAmount = bal.Due
		}
		if b.TotalAmount <= 0 {
			return ErrNothingClaimable
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO payout_batch_items (batch_id, commission_id) VALUES (:batch_id, :commission_id)
		`, items); err != nil {
			return fmt.Errorf("record batch items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payout_batches SET total_amount = $2, claimed_amount = $3 WHERE id = $1
		`, b.ID, b.TotalAmount, b.ClaimedAmount); err != nil {
			return fmt.Errorf("update batch total: %w", err)
		}

		batch = b
		return nil
	})
	return batch, err
}

// MarkSubmitted records that the rail is about to be called.
func (r *Repository) MarkSubmitted(ctx context.Context, batchID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payout_batches SET status = 'SUBMITTED', submitted_at = now()
		WHERE id = $1 AND status = 'CREATED'
	`, batchID)
	if err != nil {
		return fmt.Errorf("mark batch submitted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (r *Repository) RecordExternalID(ctx context.Context, batchID uuid.UUID, externalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payout_batches SET external_transfer_id = $2
		WHERE id = $1 AND status IN ('CREATED', 'SUBMITTED')
	`, batchID, externalID)
	if err != nil {
		return fmt.Errorf("record external transfer id: %w", err)
	}
	return nil
}

func (r *Repository) RecordInstructions(ctx context.Context, batchID uuid.UUID, key string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE payout_batches SET instruction_key = $2 WHERE id = $1`, batchID, key)
	if err != nil {
		return fmt.Errorf("record payout instructions: %w", err)
	}
	return nil
}

func (r *Repository) lockBatch(ctx context.Context, tx *sqlx.Tx, batchID uuid.UUID) (*Batch, error) {
	var b Batch
	err := tx.GetContext(ctx, &b, `SELECT `+batchColumns+` FROM payout_batches WHERE id = $1 FOR UPDATE`, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock payout batch: %w", err)
	}
	return &b, nil
}

// Confirm settles a batch: CONFIRMED, its commissions PAID and the amount
// moved from due to paid, in one transaction. It returns false when the batch
// was already confirmed.
func (r *Repository) Confirm(ctx context.Context, batchID uuid.UUID, externalID string) (*Batch, bool, error) {
	var (
		out     *Batch
		changed bool
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		b, err := r.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		out = b
		switch b.Status {
		case StatusConfirmed:
			return nil
		case StatusFailed:
			return ErrAlreadyResolved.WithMessage("batch %s already failed and was released", batchID)
		}

		if _, err := r.balances.LockTx(ctx, tx, b.BeneficiaryID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, b, `
			UPDATE payout_batches
			SET status = 'CONFIRMED', resolved_at = now(),
				external_transfer_id = COALESCE(NULLIF($2, ''), external_transfer_id)
			WHERE id = $1
			RETURNING `+batchColumns, batchID, externalID); err != nil {
			return fmt.Errorf("confirm batch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE commissions SET status = 'PAID', paid_at = now()
			WHERE batch_id = $1 AND status = 'PROCEED'
		`, batchID); err != nil {
			return fmt.Errorf("mark commissions paid: %w", err)
		}
		if err := r.ledger.PostTx(ctx, tx, ledger.Move(b.BeneficiaryID, ledger.BucketDue, ledger.BucketPaid, b.TotalAmount,
			ledger.EntryPayoutSent, ledger.Ref{Type: ledger.RefPayoutBatch, ID: b.ID})...); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// Fail marks the batch FAILED and releases its commissions for the next
// cycle. It returns false when the batch had already failed.
func (r *Repository) Fail(ctx context.Context, batchID uuid.UUID, reason string) (*Batch, bool, error) {
	var (
		out     *Batch
		changed bool
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		b, err := r.lockBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		out = b
		switch b.Status {
		case StatusFailed:
			return nil
		case StatusConfirmed:
			return ErrAlreadyResolved.WithMessage("batch %s is already confirmed", batchID)
		}

		if err := tx.GetContext(ctx, b, `
			UPDATE payout_batches
			SET status = 'FAILED', failure_reason = $2, resolved_at = now()
			WHERE id = $1
			RETURNING `+batchColumns, batchID, reason); err != nil {
			return fmt.Errorf("fail batch: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE commissions SET batch_id = NULL
			WHERE batch_id = $1 AND status = 'PROCEED'
		`, batchID)
		if err != nil {
			return fmt.Errorf("release commissions: %w", err)
		}
		released, _ := res.RowsAffected()
		log.Info().
			Str("batch_id", batchID.String()).
			Int64("released", released).
			Msg("Commissions released from failed batch")
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

func (r *Repository) Get(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	var b Batch
	err := r.db.GetContext(ctx, &b, `SELECT `+batchColumns+` FROM payout_batches WHERE id = $1`, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout batch: %w", err)
	}
	if err := r.db.SelectContext(ctx, &b.CommissionIDs, `
		SELECT commission_id FROM payout_batch_items WHERE batch_id = $1 ORDER BY commission_id
	`, batchID); err != nil {
		return nil, fmt.Errorf("list batch items: %w", err)
	}
	return &b, nil
}

func (r *Repository) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Batch, error) {
	var batches []*Batch
	err := r.db.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE beneficiary_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, beneficiaryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list payout batches: %w", err)
	}
	return batches, nil
}

// ListStale returns batches that need reconciliation: SUBMITTED ones and
// CREATED ones of non-manual methods, older than cutoff.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Batch, error) {
	var batches []*Batch
	err := r.db.SelectContext(ctx, &batches, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE created_at < $1
			AND (status = 'SUBMITTED' OR (status = 'CREATED' AND method <> 'MANUAL_BANK'))
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payout batches: %w", err)
	}
	return batches, nil
}

// ListPayable returns beneficiaries with unclaimed matured commissions, a due
// balance at or above minAmount, an external payout method and no pending
// gift card redemption.
func (r *Repository) ListPayable(ctx context.Context, minAmount int64, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT b.id
		FROM beneficiaries b
		JOIN beneficiary_balances bal ON bal.beneficiary_id = b.id
		WHERE b.payout_method <> 'PLATFORM_BALANCE'
			AND bal.due >= $1
			AND EXISTS (
				SELECT 1 FROM commissions c
				WHERE c.beneficiary_id = b.id AND `+claimablePredicate+`
			)
			AND NOT EXISTS (
				SELECT 1 FROM gift_card_redemptions g
				WHERE g.beneficiary_id = b.id AND g.status = 'PENDING'
			)
		ORDER BY b.id
		LIMIT $2
	`, minAmount, limit)
	if err != nil {
		return nil, fmt.Errorf("list payable beneficiaries: %w", err)
	}
	return ids, nil
}
