// Package notification emails beneficiaries when payouts and gift card
// redemptions settle.
package notification

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/pkg/email"
)

// Mailer queues a templated email. It must not block.
type Mailer interface {
	Queue(to, toName, templateName, subject string, data interface{})
}

type Beneficiaries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error)
}

// Service handles notification logic
type Service struct {
	mailer        Mailer
	beneficiaries Beneficiaries
	dashboardURL  string
}

func NewService(mailer Mailer, beneficiaries Beneficiaries, frontendURL string) *Service {
	return &Service{
		mailer:        mailer,
		beneficiaries: beneficiaries,
		dashboardURL:  strings.TrimRight(frontendURL, "/"),
	}
}

// PayoutResolved notifies the beneficiary about a confirmed or failed batch.
func (s *Service) PayoutResolved(ctx context.Context, beneficiaryID uuid.UUID, res *payout.Result) {
	ben, ok := s.recipient(ctx, beneficiaryID)
	if !ok {
		return
	}

	data := map[string]interface{}{
		"Name":            ben.DisplayName,
		"Amount":          FormatAmount(res.Amount, res.Currency),
		"Method":          methodLabel(res.Method),
		"Reference":       res.ExternalTransferID,
		"CommissionCount": res.CommissionCount,
		"Reason":          res.Reason,
		"DashboardURL":    s.dashboardURL + "/payouts",
	}
	switch res.Status {
	case payout.StatusConfirmed:
		s.mailer.Queue(ben.Email, ben.DisplayName, email.TemplatePayoutSent, "Your payout is on its way", data)
	case payout.StatusFailed:
		s.mailer.Queue(ben.Email, ben.DisplayName, email.TemplatePayoutFailed, "We could not complete your payout", data)
	}
}

// GiftCardResolved notifies the beneficiary about a delivered or failed redemption.
func (s *Service) GiftCardResolved(ctx context.Context, beneficiaryID uuid.UUID, res *giftcard.Result) {
	ben, ok := s.recipient(ctx, beneficiaryID)
	if !ok {
		return
	}

	data := map[string]interface{}{
		"Name":         ben.DisplayName,
		"CardType":     res.CardType,
		"Amount":       FormatAmount(res.Amount, res.Currency),
		"Reason":       res.Reason,
		"DashboardURL": s.dashboardURL + "/gift-cards",
	}
	switch res.Status {
	case giftcard.StatusDelivered:
		s.mailer.Queue(ben.Email, ben.DisplayName, email.TemplateGiftCardDelivered, "Your gift card has been issued", data)
	case giftcard.StatusFailed:
		s.mailer.Queue(ben.Email, ben.DisplayName, email.TemplateGiftCardFailed, "Gift card redemption failed", data)
	}
}

func (s *Service) recipient(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, bool) {
	ben, err := s.beneficiaries.GetByID(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("beneficiary_id", id.String()).Msg("Notification skipped, beneficiary lookup failed")
		return nil, false
	}
	if ben.Email == "" {
		return nil, false
	}
	return ben, true
}

// FormatAmount renders minor units as "12.34 USD".
func FormatAmount(minor int64, currency string) string {
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

func methodLabel(m beneficiary.PayoutMethod) string {
	switch m {
	case beneficiary.MethodConnectTransfer:
		return "Stripe transfer"
	case beneficiary.MethodAggregatorPayout:
		return "Account payout"
	case beneficiary.MethodManualBank:
		return "Bank transfer"
	}
	return string(m)
}
