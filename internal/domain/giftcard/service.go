package giftcard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

type Store interface {
	Create(ctx context.Context, red *Redemption) error
	RecordExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	MarkDelivered(ctx context.Context, id uuid.UUID, externalID string) (*Redemption, bool, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*Redemption, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Redemption, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Redemption, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Redemption, error)
}

type Beneficiaries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error)
}

// Notifier hears about redemptions that reached a terminal state.
type Notifier interface {
	GiftCardResolved(ctx context.Context, beneficiaryID uuid.UUID, res *Result)
}

type Config struct {
	Currency       string
	ReconcileGrace time.Duration
	ReconcileLimit int
}

type Service struct {
	store         Store
	beneficiaries Beneficiaries
	fulfiller     Fulfiller
	cfg           Config
	notifier      Notifier
	now           func() time.Time
}

func NewService(store Store, beneficiaries Beneficiaries, fulfiller Fulfiller, cfg Config) *Service {
	if cfg.ReconcileLimit <= 0 {
		cfg.ReconcileLimit = 500
	}
	return &Service{
		store:         store,
		beneficiaries: beneficiaries,
		fulfiller:     fulfiller,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) notify(ctx context.Context, red *Redemption) {
	if s.notifier != nil {
		s.notifier.GiftCardResolved(ctx, red.BeneficiaryID, resultOf(red))
	}
}

// Request redeems amount of the beneficiary's due balance as a gift card.
// An ambiguous provider response returns the PENDING redemption together
// with an ExternalTransferAmbiguous error.
func (s *Service) Request(ctx context.Context, beneficiaryID uuid.UUID, cardType string, amount int64) (*Result, error) {
	if s.fulfiller == nil {
		return nil, ErrUnavailable
	}
	cardType = strings.ToUpper(strings.TrimSpace(cardType))
	if err := validator.ValidateVar(cardType, "required,card_type"); err != nil {
		return nil, ErrInvalidCardType
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ben, err := s.beneficiaries.GetByID(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	recipient := ben.Email
	if ben.AggregatorEmail.Valid {
		recipient = ben.AggregatorEmail.String
	}
	if recipient == "" {
		return nil, ErrRecipientMissing
	}

	red := &Redemption{
		ID:            uuid.New(),
		BeneficiaryID: ben.ID,
		CardType:      cardType,
		Amount:        amount,
		Currency:      s.cfg.Currency,
		Status:        StatusPending,
		CreatedAt:     s.now(),
	}
	if err := s.store.Create(ctx, red); err != nil {
		return nil, err
	}
	metrics.GiftCards.WithLabelValues(string(StatusPending)).Inc()
	log.Info().
		Str("redemption_id", red.ID.String()).
		Str("beneficiary_id", red.BeneficiaryID.String()).
		Str("card_type", cardType).
		Int64("amount", amount).
		Msg("Gift card redemption created")

	res, err := s.fulfiller.Issue(ctx, FulfillmentRequest{
		RedemptionID:   red.ID,
		RecipientEmail: recipient,
		CardType:       cardType,
		Amount:         amount,
		Currency:       red.Currency,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindExternalTransferAmbiguous {
			log.Warn().Err(err).Str("redemption_id", red.ID.String()).Msg("Gift card outcome unknown, held for reconciliation")
			return resultOf(red), err
		}
		return s.fail(ctx, red, apperr.ReasonOf(err), err)
	}
	return s.apply(ctx, red, res)
}

func (s *Service) apply(ctx context.Context, red *Redemption, res *Fulfillment) (*Result, error) {
	switch res.Status {
	case StatusDelivered:
		return s.deliver(ctx, red, res.ExternalID)
	case StatusFailed:
		return s.fail(ctx, red, res.FailureReason, nil)
	}
	if res.ExternalID != "" {
		if err := s.store.RecordExternalID(ctx, red.ID, res.ExternalID); err != nil {
			return resultOf(red), err
		}
	}
	return resultOf(red), nil
}

func (s *Service) deliver(ctx context.Context, red *Redemption, externalID string) (*Result, error) {
	done, changed, err := s.store.MarkDelivered(ctx, red.ID, externalID)
	if err != nil {
		log.Error().Err(err).Str("redemption_id", red.ID.String()).Msg("Failed to mark gift card delivered")
		return resultOf(red), err
	}
	if changed {
		metrics.GiftCards.WithLabelValues(string(StatusDelivered)).Inc()
		log.Info().
			Str("redemption_id", done.ID.String()).
			Str("beneficiary_id", done.BeneficiaryID.String()).
			Msg("Gift card delivered")
		s.notify(ctx, done)
	}
	return resultOf(done), nil
}

func (s *Service) fail(ctx context.Context, red *Redemption, reason string, cause error) (*Result, error) {
	if reason == "" {
		reason = "reward_failed"
	}
	failed, changed, err := s.store.Fail(ctx, red.ID, reason)
	if err != nil {
		log.Error().Err(err).Str("redemption_id", red.ID.String()).Msg("Failed to reverse gift card redemption")
		return resultOf(red), err
	}
	if changed {
		metrics.GiftCards.WithLabelValues(string(StatusFailed)).Inc()
		log.Warn().
			Str("redemption_id", failed.ID.String()).
			Str("beneficiary_id", failed.BeneficiaryID.String()).
			Str("reason", reason).
			Msg("Gift card failed, balance restored")
		s.notify(ctx, failed)
	}
	if cause != nil {
		return resultOf(failed), cause
	}
	return resultOf(failed), nil
}

// Reconcile resolves PENDING redemptions older than the grace period by
// asking the provider.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{Errors: []ReconcileError{}}
	stale, err := s.store.ListStale(ctx, s.now().Add(-s.cfg.ReconcileGrace), s.cfg.ReconcileLimit)
	if err != nil {
		return report, err
	}

	for _, red := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := s.reconcileOne(ctx, red)
		if errors.Is(err, errRewardPending) {
			report.Pending++
			continue
		}
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, ReconcileError{
				BeneficiaryID: red.BeneficiaryID,
				RedemptionID:  red.ID,
				Reason:        apperr.ReasonOf(err),
			})
			log.Warn().Err(err).Str("redemption_id", red.ID.String()).Msg("Gift card still unresolved")
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, red *Redemption) error {
	if s.fulfiller == nil {
		return ErrUnavailable
	}
	res, err := s.fulfiller.Lookup(ctx, red.ID)
	if errors.Is(err, ErrFulfillmentMissing) {
		_, err = s.fail(ctx, red, "reward_not_found", nil)
		return err
	}
	if err != nil {
		return apperr.ExternalTransferAmbiguous("lookup_failed", err)
	}
	if res.Status == StatusPending {
		return errRewardPending
	}
	_, err = s.apply(ctx, red, res)
	return err
}

// ConfirmExternal applies a delivery notification. Repeats are no-ops.
func (s *Service) ConfirmExternal(ctx context.Context, id uuid.UUID, externalID string) (*Result, error) {
	red, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, red, externalID)
}

// FailExternal applies a failure notification. Repeats are no-ops.
func (s *Service) FailExternal(ctx context.Context, id uuid.UUID, reason string) (*Result, error) {
	red, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fail(ctx, red, reason, nil)
}

func (s *Service) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Redemption, error) {
	return s.store.ListByBeneficiary(ctx, beneficiaryID, limit, offset)
}
