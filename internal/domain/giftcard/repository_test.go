package giftcard

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerlink/settlement-api/internal/domain/balance"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")
	ledgerRepo := ledger.NewRepository(db)
	return NewRepository(db, balance.NewRepository(db, ledgerRepo), ledgerRepo), mock
}

func expectBalanceLock(mock sqlmock.Sqlmock, id uuid.UUID, due int64) {
	mock.ExpectExec("INSERT INTO beneficiary_balances").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(
		sqlmock.NewRows([]string{"beneficiary_id", "pending", "due", "paid", "updated_at"}).
			AddRow(id, int64(0), due, int64(0), time.Now()),
	)
}

func newRedemption(amount int64) *Redemption {
	return &Redemption{
		ID:            uuid.New(),
		BeneficiaryID: uuid.New(),
		CardType:      "VISA",
		Amount:        amount,
		Currency:      "usd",
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestCreateDebitsDue(t *testing.T) {
	repo, mock := newMockRepo(t)
	red := newRedemption(2000)

	mock.ExpectBegin()
	expectBalanceLock(mock, red.BeneficiaryID, 5000)
	mock.ExpectQuery("SELECT EXISTS").WithArgs(red.BeneficiaryID).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO gift_card_redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO beneficiary_balances").
		WithArgs(red.BeneficiaryID, int64(0), int64(-2000), int64(2000), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), red))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsInsufficientDue(t *testing.T) {
	repo, mock := newMockRepo(t)
	red := newRedemption(2000)

	mock.ExpectBegin()
	expectBalanceLock(mock, red.BeneficiaryID, 1999)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), red)
	assert.ErrorIs(t, err, ErrInsufficientDue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsOpenPayout(t *testing.T) {
	repo, mock := newMockRepo(t)
	red := newRedemption(500)

	mock.ExpectBegin()
	expectBalanceLock(mock, red.BeneficiaryID, 5000)
	mock.ExpectQuery("SELECT EXISTS").WithArgs(red.BeneficiaryID).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), red)
	assert.ErrorIs(t, err, ErrPayoutInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailPostsReversal(t *testing.T) {
	repo, mock := newMockRepo(t)
	red := newRedemption(1200)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM gift_card_redemptions WHERE id = \\$1 FOR UPDATE").WithArgs(red.ID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "beneficiary_id", "card_type", "amount", "currency", "status", "external_id", "failure_reason", "created_at", "resolved_at"}).
			AddRow(red.ID, red.BeneficiaryID, red.CardType, red.Amount, red.Currency, "PENDING", nil, nil, red.CreatedAt, nil),
	)
	mock.ExpectExec("UPDATE gift_card_redemptions SET status = 'FAILED'").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO beneficiary_balances").
		WithArgs(red.BeneficiaryID, int64(0), int64(1200), int64(-1200), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	out, changed, err := repo.Fail(context.Background(), red.ID, "card_declined")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusFailed, out.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailOnDeliveredConflicts(t *testing.T) {
	repo, mock := newMockRepo(t)
	red := newRedemption(1200)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(red.ID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "beneficiary_id", "card_type", "amount", "currency", "status", "external_id", "failure_reason", "created_at", "resolved_at"}).
			AddRow(red.ID, red.BeneficiaryID, red.CardType, red.Amount, red.Currency, "DELIVERED", "rw_1", nil, red.CreatedAt, time.Now()),
	)
	mock.ExpectRollback()

	_, _, err := repo.Fail(context.Background(), red.ID, "late failure")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
