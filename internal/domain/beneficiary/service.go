package beneficiary

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Store is the persistence the service depends on.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Beneficiary, error)
	Create(ctx context.Context, b *Beneficiary) error
	UpdatePayoutMethod(ctx context.Context, id uuid.UUID, method PayoutMethod, d PayoutDetails) (*Beneficiary, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Beneficiary, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, b *Beneficiary) (*Beneficiary, error) {
	if err := validateSplit(b.LeaderSplitPercent); err != nil {
		return nil, err
	}
	if err := validateSplit(b.ReferrerSplitPercent); err != nil {
		return nil, err
	}
	if b.PayoutMethod == "" {
		b.PayoutMethod = MethodPlatformBalance
	}
	if err := ValidateDestination(b.PayoutMethod, detailsOf(b)); err != nil {
		return nil, err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now

	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	log.Info().
		Str("beneficiary_id", b.ID.String()).
		Str("kind", string(b.Kind)).
		Str("workspace_id", b.WorkspaceID.String()).
		Msg("Beneficiary created")
	return b, nil
}

// SetPayoutMethod switches the payout rail. Destination details for the new
// method are required; PLATFORM_BALANCE needs none.
func (s *Service) SetPayoutMethod(ctx context.Context, id uuid.UUID, method PayoutMethod, d PayoutDetails) (*Beneficiary, error) {
	if err := ValidateDestination(method, d); err != nil {
		return nil, err
	}
	b, err := s.store.UpdatePayoutMethod(ctx, id, method, d)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("beneficiary_id", id.String()).
		Str("payout_method", string(method)).
		Str("destination", b.MaskedDestination()).
		Msg("Payout method updated")
	return b, nil
}

// Upline resolves the parties sharing the direct beneficiary's commissions:
// its organization leader, then its referral chain up to maxUplineDepth.
// Cycles, self-references and parties from other workspaces are skipped.
func (s *Service) Upline(ctx context.Context, direct *Beneficiary) ([]SplitLevel, error) {
	seen := map[uuid.UUID]bool{direct.ID: true}
	var levels []SplitLevel

	if direct.OrganizationLeaderID.Valid && direct.LeaderSplitPercent.IsPositive() {
		leader, err := s.resolve(ctx, direct.OrganizationLeaderID.UUID, direct.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if leader != nil && !seen[leader.ID] {
			seen[leader.ID] = true
			levels = append(levels, SplitLevel{
				BeneficiaryID: leader.ID,
				Kind:          leader.Kind,
				Percent:       direct.LeaderSplitPercent,
				Depth:         1,
			})
		}
	}

	current := direct
	for depth := 1; depth <= maxUplineDepth; depth++ {
		if !current.ReferrerID.Valid || !current.ReferrerSplitPercent.IsPositive() {
			break
		}
		if seen[current.ReferrerID.UUID] {
			break
		}
		referrer, err := s.resolve(ctx, current.ReferrerID.UUID, direct.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			break
		}
		seen[referrer.ID] = true
		levels = append(levels, SplitLevel{
			BeneficiaryID: referrer.ID,
			Kind:          referrer.Kind,
			Percent:       current.ReferrerSplitPercent,
			Depth:         depth,
		})
		current = referrer
	}

	return levels, nil
}

func (s *Service) resolve(ctx context.Context, id, workspaceID uuid.UUID) (*Beneficiary, error) {
	b, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Str("beneficiary_id", id.String()).Msg("Upline beneficiary not found, split skipped")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.WorkspaceID != workspaceID {
		log.Warn().Str("beneficiary_id", id.String()).Msg("Upline beneficiary belongs to another workspace, split skipped")
		return nil, nil
	}
	return b, nil
}

// ValidateDestination checks that the method's destination fields are present.
func ValidateDestination(method PayoutMethod, d PayoutDetails) error {
	switch method {
	case MethodConnectTransfer:
		if !strings.HasPrefix(d.ConnectAccountID, "acct_") {
			return ErrMissingDestination.WithMessage("CONNECT_TRANSFER requires a connected account id")
		}
	case MethodAggregatorPayout:
		if !strings.Contains(d.AggregatorEmail, "@") {
			return ErrMissingDestination.WithMessage("AGGREGATOR_PAYOUT requires an account email")
		}
	case MethodManualBank:
		if strings.TrimSpace(d.BankIBAN) == "" || strings.TrimSpace(d.BankAccountName) == "" {
			return ErrMissingDestination.WithMessage("MANUAL_BANK requires account name and IBAN")
		}
	case MethodPlatformBalance:
	default:
		return ErrInvalidPayoutMethod
	}
	return nil
}

func validateSplit(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidSplit
	}
	return nil
}

func detailsOf(b *Beneficiary) PayoutDetails {
	return PayoutDetails{
		ConnectAccountID: b.ConnectAccountID.String,
		AggregatorEmail:  b.AggregatorEmail.String,
		BankAccountName:  b.BankAccountName.String,
		BankIBAN:         b.BankIBAN.String,
	}
}
