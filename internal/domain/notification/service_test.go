package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/pkg/email"
)

type queued struct {
	to       string
	template string
	data     map[string]interface{}
}

type fakeMailer struct{ sent []queued }

func (f *fakeMailer) Queue(to, toName, templateName, subject string, data interface{}) {
	f.sent = append(f.sent, queued{to: to, template: templateName, data: data.(map[string]interface{})})
}

type fakeBeneficiaries map[uuid.UUID]*beneficiary.Beneficiary

func (f fakeBeneficiaries) GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error) {
	b, ok := f[id]
	if !ok {
		return nil, beneficiary.ErrNotFound
	}
	return b, nil
}

func TestPayoutResolvedPicksTemplateByStatus(t *testing.T) {
	id := uuid.New()
	mailer := &fakeMailer{}
	svc := NewService(mailer, fakeBeneficiaries{id: {ID: id, Email: "p@example.com", DisplayName: "Pat"}}, "https://app.example.com/")

	svc.PayoutResolved(context.Background(), id, &payout.Result{
		Status:   payout.StatusConfirmed,
		Method:   beneficiary.MethodConnectTransfer,
		Amount:   2550,
		Currency: "usd",
	})
	svc.PayoutResolved(context.Background(), id, &payout.Result{
		Status: payout.StatusFailed,
		Method: beneficiary.MethodManualBank,
		Amount: 1000,
		Reason: "iban_rejected",
	})
	svc.PayoutResolved(context.Background(), id, &payout.Result{Status: payout.StatusSubmitted})

	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(mailer.sent))
	}
	if mailer.sent[0].template != email.TemplatePayoutSent || mailer.sent[0].data["Amount"] != "25.50 USD" {
		t.Fatalf("unexpected confirmation email: %+v", mailer.sent[0])
	}
	if mailer.sent[1].template != email.TemplatePayoutFailed || mailer.sent[1].data["Reason"] != "iban_rejected" {
		t.Fatalf("unexpected failure email: %+v", mailer.sent[1])
	}
	if mailer.sent[0].data["DashboardURL"] != "https://app.example.com/payouts" {
		t.Fatalf("unexpected dashboard url: %v", mailer.sent[0].data["DashboardURL"])
	}
}

func TestGiftCardResolvedSkipsUnknownAndEmailless(t *testing.T) {
	noEmail := uuid.New()
	mailer := &fakeMailer{}
	svc := NewService(mailer, fakeBeneficiaries{noEmail: {ID: noEmail}}, "")

	svc.GiftCardResolved(context.Background(), uuid.New(), &giftcard.Result{Status: giftcard.StatusDelivered})
	svc.GiftCardResolved(context.Background(), noEmail, &giftcard.Result{Status: giftcard.StatusDelivered})

	if len(mailer.sent) != 0 {
		t.Fatalf("expected no email, got %+v", mailer.sent)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		minor    int64
		currency string
		want     string
	}{
		{0, "usd", "0.00 USD"},
		{5, "eur", "0.05 EUR"},
		{123456, "usd", "1234.56 USD"},
		{-2500, "usd", "-25.00 USD"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.minor, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %q) = %q, want %q", tt.minor, tt.currency, got, tt.want)
		}
	}
}
