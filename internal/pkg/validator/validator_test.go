package validator

import "testing"

type giftCardInput struct {
	CardType string `json:"card_type" validate:"required,card_type"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"omitempty,currency"`
}

func TestValidateCustomTags(t *testing.T) {
	errs := Validate(giftCardInput{CardType: "STEAM", Amount: 0, Currency: "us1"})
	if errs == nil {
		t.Fatalf("expected validation errors")
	}
	for _, field := range []string{"card_type", "amount", "currency"} {
		if _, ok := errs[field]; !ok {
			t.Fatalf("expected error for %s, got %v", field, errs)
		}
	}

	if errs := Validate(giftCardInput{CardType: "AMAZON", Amount: 2500, Currency: "USD"}); errs != nil {
		t.Fatalf("expected valid input, got %v", errs)
	}
}

func TestValidateVarPayoutMethod(t *testing.T) {
	if err := ValidateVar("MANUAL_BANK", "payout_method"); err != nil {
		t.Fatalf("expected MANUAL_BANK to be valid: %v", err)
	}
	if err := ValidateVar("CHEQUE", "payout_method"); err == nil {
		t.Fatalf("expected CHEQUE to be rejected")
	}
}
