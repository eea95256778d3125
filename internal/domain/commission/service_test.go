package commission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
)

type memStore struct {
	rows    []*Commission
	entries []ledger.Entry
}

func (m *memStore) FindBySourceEvent(ctx context.Context, eventID string) ([]*Commission, error) {
	var out []*Commission
	for _, c := range m.rows {
		if c.SourceEventID == eventID && !c.IsClawback() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CountPrior(ctx context.Context, beneficiaryID, missionID uuid.UUID, customerID, exclude string) (int, error) {
	n := 0
	for _, c := range m.rows {
		if c.BeneficiaryID == beneficiaryID && c.MissionID == missionID && c.CustomerID == customerID &&
			!c.IsClawback() && !c.SplitOf.Valid && c.SourceEventID != exclude {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateSet(ctx context.Context, rows []*Commission, entries []ledger.Entry) (bool, error) {
	for _, r := range rows {
		for _, c := range m.rows {
			if !c.IsClawback() && c.SourceEventID == r.SourceEventID && c.BeneficiaryID == r.BeneficiaryID {
				return false, nil
			}
		}
	}
	m.rows = append(m.rows, rows...)
	m.entries = append(m.entries, entries...)
	return true, nil
}

func (m *memStore) CreateClawbacks(ctx context.Context, eventID string, at time.Time, build func(*Commission) []ledger.Entry) ([]*Commission, error) {
	originals, _ := m.FindBySourceEvent(ctx, eventID)
	if len(originals) == 0 {
		return nil, ErrNothingToClawback
	}
	var created []*Commission
	for _, orig := range originals {
		reversed := false
		for _, c := range m.rows {
			if c.ClawbackOf.Valid && c.ClawbackOf.UUID == orig.ID {
				reversed = true
			}
		}
		if reversed {
			continue
		}
		claw := Reverse(orig, at)
		claw.ID = uuid.New()
		m.rows = append(m.rows, claw)
		m.entries = append(m.entries, build(claw)...)
		created = append(created, claw)
	}
	return created, nil
}

func (m *memStore) ListByBeneficiary(ctx context.Context, id uuid.UUID, f ListFilter) ([]*Commission, error) {
	var out []*Commission
	for _, c := range m.rows {
		if c.BeneficiaryID == id && (f.Status == "" || c.Status == f.Status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) MatureBatch(ctx context.Context, now time.Time, limit int) ([]*Commission, error) {
	var out []*Commission
	for _, c := range m.rows {
		if len(out) == limit {
			break
		}
		if c.Status == StatusPending && !c.MaturesAt.After(now) {
			c.Status = StatusProceed
			c.MaturedAt.Time, c.MaturedAt.Valid = now, true
			out = append(out, c)
			m.entries = append(m.entries, ledger.Move(c.BeneficiaryID, ledger.BucketPending, ledger.BucketDue, c.NetAmount,
				ledger.EntryCommissionMatured, ledger.Ref{Type: ledger.RefCommission, ID: c.ID})...)
		}
	}
	return out, nil
}

func (m *memStore) sums(id uuid.UUID) ledger.Sums {
	return ledger.Deltas(m.entries)[id]
}

type fakeBeneficiaries struct {
	byID   map[uuid.UUID]*beneficiary.Beneficiary
	upline []beneficiary.SplitLevel
}

func (f *fakeBeneficiaries) GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error) {
	if b, ok := f.byID[id]; ok {
		return b, nil
	}
	return nil, beneficiary.ErrNotFound
}

func (f *fakeBeneficiaries) Upline(ctx context.Context, direct *beneficiary.Beneficiary) ([]beneficiary.SplitLevel, error) {
	return f.upline, nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	direct   *beneficiary.Beneficiary
	platform uuid.UUID
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	direct := &beneficiary.Beneficiary{ID: uuid.New(), WorkspaceID: uuid.New(), Kind: beneficiary.KindPartner}
	f := &fixture{
		store:    &memStore{},
		direct:   direct,
		platform: uuid.New(),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	bens := &fakeBeneficiaries{byID: map[uuid.UUID]*beneficiary.Beneficiary{direct.ID: direct}}
	f.svc = NewService(f.store, bens, Config{
		PlatformAccountID:  f.platform,
		PlatformFeePercent: decimal.NewFromInt(15),
		DefaultHoldDays:    30,
	})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) event(orderID string) ConversionEvent {
	return ConversionEvent{
		OrderID:       orderID,
		CustomerID:    "cus_42",
		BeneficiaryID: f.direct.ID,
		WorkspaceID:   f.direct.WorkspaceID,
		Amount:        10000,
		Currency:      "usd",
	}
}

var mission = MissionConfig{
	MissionID:           uuid.MustParse("6f1c1c3e-5d0a-4f43-9a53-0d3b5c1f7e21"),
	RewardType:          RewardSale,
	CommissionStructure: StructureRecurring,
	RewardStructure:     RewardPercentage,
	Rate:                decimal.NewFromInt(10),
	Currency:            "usd",
}

func TestRecordConversionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RecordConversion(ctx, f.event("ord_1"), mission)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.Duplicate || first.Direct.NetAmount != 850 {
		t.Fatalf("unexpected first set: %+v", first.Direct)
	}

	second, err := f.svc.RecordConversion(ctx, f.event("ord_1"), mission)
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if !second.Duplicate || second.Direct.ID != first.Direct.ID {
		t.Fatalf("expected the existing commission back, got %+v", second.Direct)
	}
	if len(f.store.rows) != 1 {
		t.Fatalf("expected exactly one commission, got %d", len(f.store.rows))
	}

	if s := f.store.sums(f.direct.ID); s.Pending != 850 || s.Total() != 850 {
		t.Fatalf("unexpected beneficiary ledger: %+v", s)
	}
	if s := f.store.sums(f.platform); s.Fees != 150 || s.Total() != 0 {
		t.Fatalf("expected 150 platform fee outside pending/due/paid, got %+v", s)
	}
}

func TestRecordConversionRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t)
	ev := f.event("ord_1")
	ev.CustomerID = ""

	_, err := f.svc.RecordConversion(context.Background(), ev, mission)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.rows) != 0 {
		t.Fatalf("no state may change on invalid input")
	}
}

func TestRecordConversionWritesSplits(t *testing.T) {
	f := newFixture(t)
	leader := uuid.New()
	f.svc.beneficiaries.(*fakeBeneficiaries).upline = []beneficiary.SplitLevel{
		{BeneficiaryID: leader, Kind: beneficiary.KindOrganizationLeader, Percent: decimal.NewFromInt(20), Depth: 1},
	}

	set, err := f.svc.RecordConversion(context.Background(), f.event("ord_7"), mission)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(set.Splits) != 1 || set.Splits[0].NetAmount != 170 || set.Direct.NetAmount != 680 {
		t.Fatalf("unexpected split set: direct %+v splits %+v", set.Direct, set.Splits)
	}
	if !set.Splits[0].SplitOf.Valid || set.Splits[0].SplitOf.UUID != set.Direct.ID {
		t.Fatalf("split row must reference the direct commission")
	}
	if s := f.store.sums(leader); s.Pending != 170 {
		t.Fatalf("expected leader pending 170, got %+v", s)
	}
}

func TestClawbackOfPendingMaturesTogether(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.RecordConversion(ctx, f.event("ord_1"), mission); err != nil {
		t.Fatalf("record: %v", err)
	}

	claws, err := f.svc.Clawback(ctx, "order:ord_1", "refund")
	if err != nil {
		t.Fatalf("clawback: %v", err)
	}
	if len(claws) != 1 || claws[0].Status != StatusPending {
		t.Fatalf("expected one pending clawback, got %+v", claws)
	}
	if s := f.store.sums(f.direct.ID); s.Pending != 0 {
		t.Fatalf("clawback should cancel pending immediately, got %+v", s)
	}
	if s := f.store.sums(f.platform); s.Fees != 0 {
		t.Fatalf("platform fee should be reversed, got %+v", s)
	}

	again, err := f.svc.Clawback(ctx, "order:ord_1", "refund")
	if err != nil || len(again) != 0 {
		t.Fatalf("second clawback must be a no-op, got %v / %v", again, err)
	}

	res, err := NewMaturer(f.store, 10).Sweep(ctx, f.clock.Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Matured != 2 || res.Amount != 0 {
		t.Fatalf("expected original and clawback to mature with net 0, got %+v", res)
	}
	if s := f.store.sums(f.direct.ID); s.Pending != 0 || s.Due != 0 {
		t.Fatalf("unexpected balance after maturation: %+v", s)
	}
}

func TestClawbackOfPaidDrivesDueNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set, err := f.svc.RecordConversion(ctx, f.event("ord_1"), mission)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := NewMaturer(f.store, 10).Sweep(ctx, f.clock.Add(30*24*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// simulate a confirmed payout
	set.Direct.Status = StatusPaid
	f.store.entries = append(f.store.entries, ledger.Move(f.direct.ID, ledger.BucketDue, ledger.BucketPaid, 850,
		ledger.EntryPayoutSent, ledger.Ref{Type: ledger.RefPayoutBatch, ID: uuid.New()})...)

	claws, err := f.svc.Clawback(ctx, "order:ord_1", "chargeback")
	if err != nil {
		t.Fatalf("clawback: %v", err)
	}
	if len(claws) != 1 || claws[0].Status != StatusProceed {
		t.Fatalf("expected a PROCEED clawback, got %+v", claws)
	}
	if set.Direct.Status != StatusPaid {
		t.Fatalf("original must keep its status")
	}
	s := f.store.sums(f.direct.ID)
	if s.Due != -850 || s.Paid != 850 {
		t.Fatalf("expected due -850 paid 850, got %+v", s)
	}
}

func TestClawbackUnknownEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Clawback(context.Background(), "order:nope", "refund")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMaturationSweepIsRerunnable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"ord_1", "ord_2", "ord_3", "ord_4", "ord_5"} {
		if _, err := f.svc.RecordConversion(ctx, f.event(id), mission); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	m := NewMaturer(f.store, 2)
	early, err := m.Sweep(ctx, f.clock.Add(24*time.Hour))
	if err != nil || early.Matured != 0 {
		t.Fatalf("nothing should mature inside the hold window: %+v %v", early, err)
	}

	now := f.clock.Add(30 * 24 * time.Hour)
	first, err := m.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if first.Matured != 5 || first.Chunks != 3 || first.Amount != 5*850 {
		t.Fatalf("unexpected first sweep: %+v", first)
	}

	second, err := m.Sweep(ctx, now)
	if err != nil || second.Matured != 0 {
		t.Fatalf("second sweep must mature nothing: %+v %v", second, err)
	}

	s := f.store.sums(f.direct.ID)
	if s.Pending != 0 || s.Due != 5*850 {
		t.Fatalf("unexpected balance: %+v", s)
	}
}
