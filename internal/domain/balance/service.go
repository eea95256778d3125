package balance

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/ledger"
)

// Store is the persistence the service depends on.
type Store interface {
	Get(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error)
	CommissionTotals(ctx context.Context, beneficiaryID uuid.UUID) (CommissionTotals, error)
	Recompute(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error)
}

// LedgerReader exposes ledger aggregates and history.
type LedgerReader interface {
	Sums(ctx context.Context, beneficiaryID uuid.UUID) (ledger.Sums, error)
	List(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]ledger.Entry, error)
}

type Service struct {
	store  Store
	ledger LedgerReader
}

func NewService(store Store, ledgerReader LedgerReader) *Service {
	return &Service{store: store, ledger: ledgerReader}
}

// Get returns {pending, due, paid} as of the last committed ledger write.
func (s *Service) Get(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error) {
	return s.store.Get(ctx, beneficiaryID)
}

func (s *Service) Ledger(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]ledger.Entry, error) {
	return s.ledger.List(ctx, beneficiaryID, limit, offset)
}

func (s *Service) Verify(ctx context.Context, beneficiaryID uuid.UUID) (*Report, error) {
	b, err := s.store.Get(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	sums, err := s.ledger.Sums(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.CommissionTotals(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}

	r := &Report{BeneficiaryID: beneficiaryID, Balance: *b, Ledger: sums}
	r.Commissions.Pending = totals.Pending
	r.Commissions.Due = totals.Due
	r.LedgerMatches = b.Pending == sums.Pending && b.Due == sums.Due && b.Paid == sums.Paid
	r.PendingMatches = b.Pending == totals.Pending
	r.RedeemedAhead = totals.Due - b.Due
	r.Consistent = r.LedgerMatches && r.PendingMatches && r.RedeemedAhead >= 0

	if !r.Consistent {
		log.Error().
			Str("beneficiary_id", beneficiaryID.String()).
			Bool("ledger_matches", r.LedgerMatches).
			Bool("pending_matches", r.PendingMatches).
			Int64("redeemed_ahead", r.RedeemedAhead).
			Msg("Balance drift detected")
	}
	return r, nil
}

func (s *Service) Recompute(ctx context.Context, beneficiaryID uuid.UUID) (*Balance, error) {
	b, err := s.store.Recompute(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	log.Warn().
		Str("beneficiary_id", beneficiaryID.String()).
		Int64("pending", b.Pending).
		Int64("due", b.Due).
		Int64("paid", b.Paid).
		Msg("Balance rebuilt from ledger")
	return b, nil
}
