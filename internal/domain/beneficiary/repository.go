package beneficiary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/partnerlink/settlement-api/internal/pkg/database"
)

const selectColumns = `
	id, workspace_id, kind, display_name, email, payout_method,
	connect_account_id, aggregator_email, bank_account_name, bank_iban,
	organization_leader_id, leader_split_percent, referrer_id, referrer_split_percent,
	created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Beneficiary, error) {
	var b Beneficiary
	err := r.db.GetContext(ctx, &b, `SELECT `+selectColumns+` FROM beneficiaries WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get beneficiary: %w", err)
	}
	return &b, nil
}

func (r *Repository) Create(ctx context.Context, b *Beneficiary) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO beneficiaries (
			id, workspace_id, kind, display_name, email, payout_method,
			connect_account_id, aggregator_email, bank_account_name, bank_iban,
			organization_leader_id, leader_split_percent, referrer_id, referrer_split_percent,
			created_at, updated_at
		) VALUES (
			:id, :workspace_id, :kind, :display_name, :email, :payout_method,
			:connect_account_id, :aggregator_email, :bank_account_name, :bank_iban,
			:organization_leader_id, :leader_split_percent, :referrer_id, :referrer_split_percent,
			:created_at, :updated_at
		)
	`, b)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create beneficiary: %w", err)
	}
	return nil
}

func (r *Repository) UpdatePayoutMethod(ctx context.Context, id uuid.UUID, method PayoutMethod, d PayoutDetails) (*Beneficiary, error) {
	var b Beneficiary
	err := r.db.GetContext(ctx, &b, `
		UPDATE beneficiaries
		SET payout_method = $2,
		    connect_account_id = NULLIF($3, ''),
		    aggregator_email = NULLIF($4, ''),
		    bank_account_name = NULLIF($5, ''),
		    bank_iban = NULLIF($6, ''),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+selectColumns,
		id, string(method), d.ConnectAccountID, d.AggregatorEmail, d.BankAccountName, d.BankIBAN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update payout method: %w", err)
	}
	return &b, nil
}
