package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
	"github.com/partnerlink/settlement-api/internal/pkg/validator"
)

// Store is the persistence the service depends on.
type Store interface {
	FindBySourceEvent(ctx context.Context, sourceEventID string) ([]*Commission, error)
	CountPrior(ctx context.Context, beneficiaryID, missionID uuid.UUID, customerID, excludeEventID string) (int, error)
	CreateSet(ctx context.Context, rows []*Commission, entries []ledger.Entry) (bool, error)
	CreateClawbacks(ctx context.Context, sourceEventID string, at time.Time, build func(*Commission) []ledger.Entry) ([]*Commission, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, f ListFilter) ([]*Commission, error)
}

// Beneficiaries resolves the direct party and its upline.
type Beneficiaries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error)
	Upline(ctx context.Context, direct *beneficiary.Beneficiary) ([]beneficiary.SplitLevel, error)
}

type Config struct {
	// PlatformAccountID receives PLATFORM_FEE ledger rows.
	PlatformAccountID  uuid.UUID
	PlatformFeePercent decimal.Decimal
	DefaultHoldDays    int
}

type Service struct {
	store         Store
	beneficiaries Beneficiaries
	cfg           Config
	now           func() time.Time
}

func NewService(store Store, beneficiaries Beneficiaries, cfg Config) *Service {
	if cfg.PlatformAccountID == uuid.Nil {
		log.Warn().Msg("No platform account configured, platform fees are kept on commission rows only")
	}
	return &Service{
		store:         store,
		beneficiaries: beneficiaries,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordConversion creates the commissions for a conversion event. A
// redelivered event returns the rows recorded the first time.
func (s *Service) RecordConversion(ctx context.Context, ev ConversionEvent, mission MissionConfig) (*Set, error) {
	if errs := validator.Validate(ev); errs != nil {
		return nil, apperr.ValidationDetails(errs)
	}
	if errs := validator.Validate(mission); errs != nil {
		return nil, apperr.ValidationDetails(errs)
	}
	eventID := ev.SourceEventID()
	if eventID == "" {
		return nil, ErrMissingEventID
	}

	if existing, err := s.existing(ctx, eventID); err != nil || existing != nil {
		return existing, err
	}

	direct, err := s.beneficiaries.GetByID(ctx, ev.BeneficiaryID)
	if err != nil {
		return nil, err
	}
	upline, err := s.beneficiaries.Upline(ctx, direct)
	if err != nil {
		return nil, err
	}
	prior, err := s.store.CountPrior(ctx, direct.ID, mission.MissionID, ev.CustomerID, eventID)
	if err != nil {
		return nil, err
	}

	set, err := Calculate(CalculationInput{
		Event:            ev,
		Mission:          mission,
		Direct:           direct,
		Upline:           upline,
		PriorOccurrences: prior,
		DefaultFee:       s.cfg.PlatformFeePercent,
		DefaultHoldDays:  s.cfg.DefaultHoldDays,
		At:               s.now(),
	})
	if err != nil {
		return nil, err
	}
	if set.Direct == nil {
		log.Info().
			Str("source_event_id", eventID).
			Str("beneficiary_id", direct.ID.String()).
			Str("reason", set.SkipReason).
			Msg("Conversion produced no commission")
		return &set, nil
	}

	set.Direct.ID = uuid.New()
	for _, c := range set.Splits {
		c.ID = uuid.New()
		c.SplitOf = uuid.NullUUID{UUID: set.Direct.ID, Valid: true}
	}

	created, err := s.store.CreateSet(ctx, set.Rows(), s.accrualEntries(set))
	if err != nil {
		return nil, err
	}
	if !created {
		// lost the race to a concurrent delivery of the same event
		return s.existing(ctx, eventID)
	}

	metrics.CommissionsCreated.WithLabelValues("direct").Inc()
	metrics.CommissionsCreated.WithLabelValues("split").Add(float64(len(set.Splits)))
	log.Info().
		Str("source_event_id", eventID).
		Str("commission_id", set.Direct.ID.String()).
		Str("beneficiary_id", direct.ID.String()).
		Int64("gross", set.Direct.GrossAmount).
		Int64("fee", set.Direct.PlatformFeeAmount).
		Int64("net", set.Direct.NetAmount).
		Int("splits", len(set.Splits)).
		Msg("Commission recorded")
	return &set, nil
}

func (s *Service) existing(ctx context.Context, eventID string) (*Set, error) {
	rows, err := s.store.FindBySourceEvent(ctx, eventID)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	set := &Set{Duplicate: true}
	for _, c := range rows {
		if !c.SplitOf.Valid && set.Direct == nil {
			set.Direct = c
			continue
		}
		set.Splits = append(set.Splits, c)
	}
	return set, nil
}

func (s *Service) accrualEntries(set Set) []ledger.Entry {
	var entries []ledger.Entry
	for _, c := range set.Rows() {
		entries = append(entries, ledger.Credit(c.BeneficiaryID, ledger.BucketPending, c.NetAmount,
			ledger.EntryCommissionAccrued, ledger.Ref{Type: ledger.RefCommission, ID: c.ID}))
	}
	if fee := set.PlatformFee(); fee != 0 && s.cfg.PlatformAccountID != uuid.Nil {
		entries = append(entries, ledger.Credit(s.cfg.PlatformAccountID, ledger.BucketFee, fee,
			ledger.EntryPlatformFee, ledger.Ref{Type: ledger.RefCommission, ID: set.Direct.ID}))
	}
	return entries
}

// Clawback reverses every commission of a refunded or cancelled event.
// Reversals already recorded are not repeated.
func (s *Service) Clawback(ctx context.Context, sourceEventID, reason string) ([]*Commission, error) {
	if sourceEventID == "" {
		return nil, ErrMissingEventID
	}
	rows, err := s.store.CreateClawbacks(ctx, sourceEventID, s.now(), s.clawbackEntries)
	if err != nil {
		return nil, err
	}
	for _, c := range rows {
		metrics.CommissionsCreated.WithLabelValues("clawback").Inc()
		metrics.Clawbacks.Inc()
		log.Info().
			Str("source_event_id", sourceEventID).
			Str("commission_id", c.ID.String()).
			Str("clawback_of", c.ClawbackOf.UUID.String()).
			Str("beneficiary_id", c.BeneficiaryID.String()).
			Str("status", string(c.Status)).
			Int64("net", c.NetAmount).
			Str("reason", reason).
			Msg("Commission clawed back")
	}
	return rows, nil
}

// clawbackEntries debits the bucket the reversed amount currently sits in.
func (s *Service) clawbackEntries(c *Commission) []ledger.Entry {
	bucket := ledger.BucketDue
	if c.Status == StatusPending {
		bucket = ledger.BucketPending
	}
	entries := []ledger.Entry{
		ledger.Credit(c.BeneficiaryID, bucket, c.NetAmount, ledger.EntryClawback,
			ledger.Ref{Type: ledger.RefCommission, ID: c.ID}),
	}
	if c.PlatformFeeAmount != 0 && s.cfg.PlatformAccountID != uuid.Nil {
		entries = append(entries, ledger.Credit(s.cfg.PlatformAccountID, ledger.BucketFee, c.PlatformFeeAmount,
			ledger.EntryPlatformFee, ledger.Ref{Type: ledger.RefCommission, ID: c.ID}))
	}
	return entries
}

func (s *Service) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, f ListFilter) ([]*Commission, error) {
	return s.store.ListByBeneficiary(ctx, beneficiaryID, f)
}
