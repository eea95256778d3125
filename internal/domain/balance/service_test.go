package balance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/middleware"
)

type fakeStore struct {
	balance Balance
	totals  CommissionTotals
	unknown bool
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*Balance, error) {
	if f.unknown {
		return nil, ErrNotFound
	}
	b := f.balance
	b.BeneficiaryID = id
	return &b, nil
}

func (f *fakeStore) CommissionTotals(ctx context.Context, id uuid.UUID) (CommissionTotals, error) {
	return f.totals, nil
}

func (f *fakeStore) Recompute(ctx context.Context, id uuid.UUID) (*Balance, error) {
	return f.Get(ctx, id)
}

type fakeLedger struct {
	sums    ledger.Sums
	entries []ledger.Entry
}

func (f *fakeLedger) Sums(ctx context.Context, id uuid.UUID) (ledger.Sums, error) {
	return f.sums, nil
}

func (f *fakeLedger) List(ctx context.Context, id uuid.UUID, limit, offset int) ([]ledger.Entry, error) {
	if offset >= len(f.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func TestVerifyConsistent(t *testing.T) {
	store := &fakeStore{
		balance: Balance{Pending: 850, Due: 400, Paid: 1000},
		totals:  CommissionTotals{Pending: 850, Due: 600},
	}
	lr := &fakeLedger{sums: ledger.Sums{Pending: 850, Due: 400, Paid: 1000}}

	report, err := NewService(store, lr).Verify(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent report, got %+v", report)
	}
	// 200 was redeemed as a gift card ahead of the next payout
	if report.RedeemedAhead != 200 {
		t.Fatalf("expected redeemed_ahead 200, got %d", report.RedeemedAhead)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	store := &fakeStore{
		balance: Balance{Pending: 850, Due: 500},
		totals:  CommissionTotals{Pending: 850, Due: 500},
	}
	lr := &fakeLedger{sums: ledger.Sums{Pending: 850, Due: 450}}

	report, err := NewService(store, lr).Verify(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.LedgerMatches || report.Consistent {
		t.Fatalf("expected drift to be reported, got %+v", report)
	}
}

func TestVerifyFlagsDueAboveCommissions(t *testing.T) {
	store := &fakeStore{
		balance: Balance{Due: 700},
		totals:  CommissionTotals{Due: 500},
	}
	lr := &fakeLedger{sums: ledger.Sums{Due: 700}}

	report, err := NewService(store, lr).Verify(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Consistent {
		t.Fatalf("due exceeding matured commissions must be inconsistent: %+v", report)
	}
}

func TestLedgerHandlerPaginates(t *testing.T) {
	entries := make([]ledger.Entry, 3)
	for i := range entries {
		entries[i] = ledger.Entry{ID: uuid.New(), Amount: int64(i + 1)}
	}
	h := NewHandler(NewService(&fakeStore{}, &fakeLedger{entries: entries}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger?limit=2", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.BeneficiaryIDKey, uuid.New()))
	w := httptest.NewRecorder()
	h.Ledger(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data []ledger.Entry `json:"data"`
		Meta struct {
			HasNext bool `json:"has_next"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || !body.Meta.HasNext {
		t.Fatalf("expected 2 entries with has_next, got %d / %v", len(body.Data), body.Meta.HasNext)
	}
}

func TestAdminBalanceRoutesRejectUnknownBeneficiary(t *testing.T) {
	h := NewHandler(NewService(&fakeStore{unknown: true}, &fakeLedger{}))
	pass := func(next http.Handler) http.Handler { return next }
	router := h.AdminRoutes(pass, pass)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/" + uuid.NewString() + "/verify"},
		{http.MethodPost, "/" + uuid.NewString() + "/recompute"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}
