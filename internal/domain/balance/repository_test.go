package balance

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerlink/settlement-api/internal/domain/ledger"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")
	return NewRepository(db, ledger.NewRepository(db)), mock
}

func TestGetReturnsZeroWithoutLedgerActivity(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("LEFT JOIN beneficiary_balances").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"beneficiary_id", "pending", "due", "paid", "updated_at"}).
			AddRow(id, int64(0), int64(0), int64(0), time.Now()))

	b, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, b.BeneficiaryID)
	assert.Zero(t, b.Pending+b.Due+b.Paid)
}

func TestGetUnknownBeneficiaryIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("LEFT JOIN beneficiary_balances").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"beneficiary_id", "pending", "due", "paid", "updated_at"}))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeUnknownBeneficiaryCreatesNothing(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM beneficiaries WHERE id").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Recompute(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeRewritesFromLedger(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM beneficiaries WHERE id").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO beneficiary_balances").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"beneficiary_id", "pending", "due", "paid", "updated_at"}).
			AddRow(id.String(), 0, 0, 0, now))
	mock.ExpectQuery("FROM ledger_entries").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "due", "paid", "fees"}).AddRow(850, 150, 1000, 0))
	mock.ExpectQuery("UPDATE beneficiary_balances").
		WithArgs(id, int64(850), int64(150), int64(1000), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"beneficiary_id", "pending", "due", "paid", "updated_at"}).
			AddRow(id.String(), 850, 150, 1000, now))
	mock.ExpectCommit()

	b, err := repo.Recompute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(850), b.Pending)
	assert.Equal(t, int64(150), b.Due)
	assert.Equal(t, int64(1000), b.Paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
