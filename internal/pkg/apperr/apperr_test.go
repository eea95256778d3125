package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindSentinel(t *testing.T) {
	err := InsufficientBalance("below_minimum_payout", "due is below the minimum")
	wrapped := fmt.Errorf("dispatch: %w", err)

	if !errors.Is(wrapped, ErrInsufficientBalance) {
		t.Fatalf("expected wrapped error to match kind sentinel")
	}
	if errors.Is(wrapped, ErrConcurrencyConflict) {
		t.Fatalf("did not expect match against a different kind")
	}
}

func TestIsMatchesReasonWhenTargetHasOne(t *testing.T) {
	negative := InsufficientBalance("negative_balance", "balance is negative")
	belowMin := InsufficientBalance("below_minimum_payout", "below minimum")

	if !errors.Is(belowMin.WithMessage("due %d", 10), belowMin) {
		t.Fatalf("expected copy with new message to keep reason match")
	}
	if errors.Is(negative, belowMin) {
		t.Fatalf("expected reasons to be compared when target carries one")
	}
}

func TestKindAndReasonOf(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("rail: %w", ExternalTransferAmbiguous("rail_timeout", cause))

	if KindOf(err) != KindExternalTransferAmbiguous {
		t.Fatalf("expected ambiguous kind, got %s", KindOf(err))
	}
	if ReasonOf(err) != "rail_timeout" {
		t.Fatalf("expected rail_timeout, got %s", ReasonOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay reachable")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected foreign errors to be internal")
	}
	if ReasonOf(ErrNotFound) != string(KindNotFound) {
		t.Fatalf("expected kind as fallback reason")
	}
}
