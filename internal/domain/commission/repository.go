package commission

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

const columns = `id, workspace_id, beneficiary_id, beneficiary_kind, source_event_id, mission_id, customer_id,
	commission_type, gross_amount, platform_fee_amount, split_amount, net_amount, currency, status,
	split_of, clawback_of, batch_id, matures_at, created_at, matured_at, paid_at`

const insertQuery = `
	INSERT INTO commissions (` + columns + `)
	VALUES (:id, :workspace_id, :beneficiary_id, :beneficiary_kind, :source_event_id, :mission_id, :customer_id,
		:commission_type, :gross_amount, :platform_fee_amount, :split_amount, :net_amount, :currency, :status,
		:split_of, :clawback_of, :batch_id, :matures_at, :created_at, :matured_at, :paid_at)`

// errAlreadyRecorded aborts a set insert that lost the idempotency race.
var errAlreadyRecorded = errors.New("commission set already recorded")

type Repository struct {
	db       *sqlx.DB
	balances *balance.Repository
	ledger   *ledger.Repository
}

func NewRepository(db *sqlx.DB, balances *balance.Repository, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, balances: balances, ledger: ledgerRepo}
}

// FindBySourceEvent returns the non-clawback rows of an event, direct row first.
func (r *Repository) FindBySourceEvent(ctx context.Context, sourceEventID string) ([]*Commission, error) {
	var rows []*Commission
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+columns+`
		FROM commissions
		WHERE source_event_id = $1 AND clawback_of IS NULL
		ORDER BY split_of NULLS FIRST, created_at, id
	`, sourceEventID)
	if err != nil {
		return nil, fmt.Errorf("find commissions by event: %w", err)
	}
	return rows, nil
}

// CountPrior counts direct commissions earlier events produced for the same
// customer, mission and beneficiary.
func (r *Repository) CountPrior(ctx context.Context, beneficiaryID, missionID uuid.UUID, customerID, excludeEventID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM commissions
		WHERE beneficiary_id = $1 AND mission_id = $2 AND customer_id = $3
			AND clawback_of IS NULL AND split_of IS NULL
			AND source_event_id <> $4
	`, beneficiaryID, missionID, customerID, excludeEventID)
	if err != nil {
		return 0, fmt.Errorf("count prior commissions: %w", err)
	}
	return n, nil
}

// CreateSet inserts the rows and their ledger entries atomically. It returns
// false without writing anything when the event was already recorded.
func (r *Repository) CreateSet(ctx context.Context, rows []*Commission, entries []ledger.Entry) (bool, error) {
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, c := range rows {
			res, err := tx.NamedExecContext(ctx, insertQuery+`
				ON CONFLICT (source_event_id, beneficiary_id) WHERE clawback_of IS NULL DO NOTHING`, c)
			if err != nil {
				return fmt.Errorf("insert commission: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return errAlreadyRecorded
			}
		}
		return r.ledger.PostTx(ctx, tx, entries...)
	})
	if errors.Is(err, errAlreadyRecorded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateClawbacks reverses every commission of the event that has not been
// reversed yet. build supplies the ledger entries for each new clawback row.
// Balance rows are locked before commission rows, the same order Claim uses.
func (r *Repository) CreateClawbacks(ctx context.Context, sourceEventID string, at time.Time, build func(*Commission) []ledger.Entry) ([]*Commission, error) {
	var created []*Commission
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var beneficiaryIDs []uuid.UUID
		if err := tx.SelectContext(ctx, &beneficiaryIDs, `
			SELECT DISTINCT beneficiary_id
			FROM commissions
			WHERE source_event_id = $1 AND clawback_of IS NULL
			ORDER BY beneficiary_id
		`, sourceEventID); err != nil {
			return fmt.Errorf("find clawback beneficiaries: %w", err)
		}
		if len(beneficiaryIDs) == 0 {
			return ErrNothingToClawback
		}
		// uuid order here matches the byte order ledger.PostTx locks in
		for _, id := range beneficiaryIDs {
			if _, err := r.balances.LockTx(ctx, tx, id); err != nil {
				return err
			}
		}

		var originals []*Commission
		if err := tx.SelectContext(ctx, &originals, `
			SELECT `+columns+`
			FROM commissions
			WHERE source_event_id = $1 AND clawback_of IS NULL
			ORDER BY id
			FOR UPDATE
		`, sourceEventID); err != nil {
			return fmt.Errorf("lock commissions for clawback: %w", err)
		}
		if len(originals) == 0 {
			return ErrNothingToClawback
		}

		var entries []ledger.Entry
		for _, orig := range originals {
			claw := Reverse(orig, at)
			claw.ID = uuid.New()
			res, err := tx.NamedExecContext(ctx, insertQuery+`
				ON CONFLICT (clawback_of) WHERE clawback_of IS NOT NULL DO NOTHING`, claw)
			if err != nil {
				return fmt.Errorf("insert clawback: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			created = append(created, claw)
			entries = append(entries, build(claw)...)
		}
		return r.ledger.PostTx(ctx, tx, entries...)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MatureBatch flips up to limit eligible PENDING rows to PROCEED and moves
// their net amounts from pending to due, all in one transaction. Rows locked
// by a concurrent sweep are skipped. A pending clawback sorts next to its
// original so the pair usually matures together; Claim never pays a clawed
// back original either way.
func (r *Repository) MatureBatch(ctx context.Context, now time.Time, limit int) ([]*Commission, error) {
	var matured []*Commission
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &matured, `
			WITH eligible AS (
				SELECT id FROM commissions
				WHERE status = 'PENDING' AND matures_at <= $1
				ORDER BY matures_at, COALESCE(clawback_of, id), id
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			UPDATE commissions c
			SET status = 'PROCEED', matured_at = $1
			FROM eligible
			WHERE c.id = eligible.id
			RETURNING c.id, c.beneficiary_id, c.net_amount, c.status, c.matured_at
		`, now, limit); err != nil {
			return fmt.Errorf("mature commissions: %w", err)
		}

		entries := make([]ledger.Entry, 0, 2*len(matured))
		for _, c := range matured {
			entries = append(entries, ledger.Move(c.BeneficiaryID, ledger.BucketPending, ledger.BucketDue, c.NetAmount,
				ledger.EntryCommissionMatured, ledger.Ref{Type: ledger.RefCommission, ID: c.ID})...)
		}
		return r.ledger.PostTx(ctx, tx, entries...)
	})
	if err != nil {
		return nil, err
	}
	return matured, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Commission, error) {
	var c Commission
	err := r.db.GetContext(ctx, &c, `SELECT `+columns+` FROM commissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get commission: %w", err)
	}
	return &c, nil
}

func (r *Repository) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, f ListFilter) ([]*Commission, error) {
	query := `SELECT ` + columns + ` FROM commissions WHERE beneficiary_id = $1`
	args := []interface{}{beneficiaryID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []*Commission
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return rows, nil
}
