package commission

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
)

var hundred = decimal.NewFromInt(100)

// CalculationInput is everything Calculate needs; it performs no I/O.
type CalculationInput struct {
	Event   ConversionEvent
	Mission MissionConfig
	Direct  *beneficiary.Beneficiary
	Upline  []beneficiary.SplitLevel
	// PriorOccurrences counts earlier commissions for the same customer,
	// mission and direct beneficiary.
	PriorOccurrences int
	DefaultFee       decimal.Decimal
	DefaultHoldDays  int
	At               time.Time
}

const (
	SkipOneOffUsed      = "one_off_already_rewarded"
	SkipRecurringCapped = "max_recurring_occurrences_reached"
	SkipZeroAmount      = "zero_commission"
)

// Calculate turns a conversion into commission rows. Same input, same amounts.
//
// gross is floored for percentage rewards, the fee is rounded half-up, and
// upline shares are floored from the largest slice inward; the direct
// beneficiary keeps every rounding remainder.
func Calculate(in CalculationInput) (Set, error) {
	ev, m := in.Event, in.Mission

	if ev.SourceEventID() == "" {
		return Set{}, ErrMissingEventID
	}
	if ev.Amount < 0 {
		return Set{}, ErrNegativeAmount
	}
	if !strings.EqualFold(ev.Currency, m.Currency) {
		return Set{}, ErrCurrencyMismatch.WithMessage("conversion in %s, mission pays %s", ev.Currency, m.Currency)
	}
	if in.Direct.WorkspaceID != ev.WorkspaceID {
		return Set{}, ErrWorkspaceMismatch
	}

	feePercent := in.DefaultFee
	if m.PlatformFeePercent.Valid {
		feePercent = m.PlatformFeePercent.Decimal
	}
	if !inPercentRange(feePercent) {
		return Set{}, ErrInvalidFee
	}

	switch m.CommissionStructure {
	case StructureOneOff:
		if in.PriorOccurrences > 0 {
			return Set{SkipReason: SkipOneOffUsed}, nil
		}
	case StructureRecurring:
		if m.MaxRecurringOccurrences > 0 && in.PriorOccurrences >= m.MaxRecurringOccurrences {
			return Set{SkipReason: SkipRecurringCapped}, nil
		}
	}

	gross, err := grossAmount(ev.Amount, m)
	if err != nil {
		return Set{}, err
	}
	if gross <= 0 {
		return Set{SkipReason: SkipZeroAmount}, nil
	}

	holdDays := in.DefaultHoldDays
	if m.HoldDays != nil {
		holdDays = *m.HoldDays
	}

	fee := decimal.NewFromInt(gross).Mul(feePercent).Div(hundred).Round(0).IntPart()
	distributable := gross - fee

	base := Commission{
		WorkspaceID:   ev.WorkspaceID,
		SourceEventID: ev.SourceEventID(),
		MissionID:     m.MissionID,
		CustomerID:    ev.CustomerID,
		Type:          m.CommissionStructure,
		Currency:      strings.ToLower(m.Currency),
		Status:        StatusPending,
		MaturesAt:     in.At.Add(time.Duration(holdDays) * 24 * time.Hour),
		CreatedAt:     in.At,
	}

	levels := make([]beneficiary.SplitLevel, len(in.Upline))
	copy(levels, in.Upline)
	sort.SliceStable(levels, func(i, j int) bool {
		if !levels[i].Percent.Equal(levels[j].Percent) {
			return levels[i].Percent.GreaterThan(levels[j].Percent)
		}
		if levels[i].Depth != levels[j].Depth {
			return levels[i].Depth > levels[j].Depth
		}
		return levels[i].BeneficiaryID.String() < levels[j].BeneficiaryID.String()
	})

	set := Set{}
	remaining := distributable
	for _, lvl := range levels {
		if !lvl.Percent.IsPositive() {
			continue
		}
		share := decimal.NewFromInt(distributable).Mul(lvl.Percent).Div(hundred).Floor().IntPart()
		if share > remaining {
			share = remaining
		}
		if share <= 0 {
			continue
		}
		remaining -= share

		c := base
		c.BeneficiaryID = lvl.BeneficiaryID
		c.BeneficiaryKind = lvl.Kind
		c.GrossAmount = share
		c.NetAmount = share
		set.Splits = append(set.Splits, &c)
	}

	direct := base
	direct.BeneficiaryID = in.Direct.ID
	direct.BeneficiaryKind = in.Direct.Kind
	direct.GrossAmount = gross
	direct.PlatformFeeAmount = fee
	direct.SplitAmount = distributable - remaining
	direct.NetAmount = remaining
	set.Direct = &direct

	return set, nil
}

func grossAmount(amount int64, m MissionConfig) (int64, error) {
	if m.RewardType == RewardLead || m.RewardStructure == RewardFlat {
		return m.FlatAmount, nil
	}
	if !inPercentRange(m.Rate) {
		return 0, ErrInvalidRate
	}
	return decimal.NewFromInt(amount).Mul(m.Rate).Div(hundred).Floor().IntPart(), nil
}

func inPercentRange(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// Reverse builds the clawback row for orig. A PENDING original is reversed
// in PENDING and matures together with it; anything else is reversed
// against due immediately.
func Reverse(orig *Commission, at time.Time) *Commission {
	c := *orig
	c.ID = uuid.Nil
	c.GrossAmount = -orig.GrossAmount
	c.PlatformFeeAmount = -orig.PlatformFeeAmount
	c.SplitAmount = -orig.SplitAmount
	c.NetAmount = -orig.NetAmount
	c.ClawbackOf.UUID, c.ClawbackOf.Valid = orig.ID, true
	c.SplitOf = uuid.NullUUID{}
	c.BatchID = uuid.NullUUID{}
	c.CreatedAt = at
	c.PaidAt.Valid = false
	if orig.Status == StatusPending {
		c.Status = StatusPending
		c.MaturedAt.Valid = false
	} else {
		c.Status = StatusProceed
		c.MaturesAt = at
		c.MaturedAt.Time, c.MaturedAt.Valid = at, true
	}
	return &c
}
