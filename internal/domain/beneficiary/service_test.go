package beneficiary

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryStore struct {
	items map[uuid.UUID]*Beneficiary
}

func newMemoryStore(items ...*Beneficiary) *memoryStore {
	s := &memoryStore{items: map[uuid.UUID]*Beneficiary{}}
	for _, b := range items {
		s.items[b.ID] = b
	}
	return s
}

func (s *memoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Beneficiary, error) {
	b, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memoryStore) Create(ctx context.Context, b *Beneficiary) error {
	if _, ok := s.items[b.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[b.ID] = b
	return nil
}

func (s *memoryStore) UpdatePayoutMethod(ctx context.Context, id uuid.UUID, method PayoutMethod, d PayoutDetails) (*Beneficiary, error) {
	b, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.PayoutMethod = method
	b.ConnectAccountID = nullString(d.ConnectAccountID)
	b.AggregatorEmail = nullString(d.AggregatorEmail)
	b.BankAccountName = nullString(d.BankAccountName)
	b.BankIBAN = nullString(d.BankIBAN)
	return b, nil
}

func ref(id uuid.UUID) uuid.NullUUID { return uuid.NullUUID{UUID: id, Valid: true} }

func TestUplineLeaderThenReferralChain(t *testing.T) {
	ws := uuid.New()
	leader := &Beneficiary{ID: uuid.New(), WorkspaceID: ws, Kind: KindOrganizationLeader}
	grand := &Beneficiary{ID: uuid.New(), WorkspaceID: ws, Kind: KindPartner}
	referrer := &Beneficiary{ID: uuid.New(), WorkspaceID: ws, Kind: KindPartner,
		ReferrerID: ref(grand.ID), ReferrerSplitPercent: decimal.NewFromInt(5)}
	direct := &Beneficiary{ID: uuid.New(), WorkspaceID: ws, Kind: KindSeller,
		OrganizationLeaderID: ref(leader.ID), LeaderSplitPercent: decimal.NewFromInt(20),
		ReferrerID: ref(referrer.ID), ReferrerSplitPercent: decimal.NewFromInt(10)}

	svc := NewService(newMemoryStore(leader, grand, referrer, direct))
	levels, err := svc.Upline(context.Background(), direct)
	if err != nil {
		t.Fatalf("upline: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %+v", len(levels), levels)
	}
	if levels[0].BeneficiaryID != leader.ID || !levels[0].Percent.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected leader level %+v", levels[0])
	}
	if levels[1].BeneficiaryID != referrer.ID || levels[1].Depth != 1 {
		t.Fatalf("unexpected referrer level %+v", levels[1])
	}
	if levels[2].BeneficiaryID != grand.ID || levels[2].Depth != 2 || !levels[2].Percent.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected second referrer level %+v", levels[2])
	}
}

func TestUplineStopsAtCyclesAndForeignWorkspaces(t *testing.T) {
	ws := uuid.New()
	a := &Beneficiary{ID: uuid.New(), WorkspaceID: ws}
	b := &Beneficiary{ID: uuid.New(), WorkspaceID: ws}
	a.ReferrerID, a.ReferrerSplitPercent = ref(b.ID), decimal.NewFromInt(10)
	b.ReferrerID, b.ReferrerSplitPercent = ref(a.ID), decimal.NewFromInt(10)

	foreign := &Beneficiary{ID: uuid.New(), WorkspaceID: uuid.New()}
	c := &Beneficiary{ID: uuid.New(), WorkspaceID: ws,
		OrganizationLeaderID: ref(foreign.ID), LeaderSplitPercent: decimal.NewFromInt(30)}

	svc := NewService(newMemoryStore(a, b, c, foreign))

	levels, err := svc.Upline(context.Background(), a)
	if err != nil {
		t.Fatalf("upline: %v", err)
	}
	if len(levels) != 1 || levels[0].BeneficiaryID != b.ID {
		t.Fatalf("expected cycle to stop after one level, got %+v", levels)
	}

	levels, err = svc.Upline(context.Background(), c)
	if err != nil {
		t.Fatalf("upline: %v", err)
	}
	if len(levels) != 0 {
		t.Fatalf("expected foreign leader to be skipped, got %+v", levels)
	}
}

func TestSetPayoutMethodValidatesDestination(t *testing.T) {
	b := &Beneficiary{ID: uuid.New(), WorkspaceID: uuid.New(), PayoutMethod: MethodPlatformBalance}
	svc := NewService(newMemoryStore(b))
	ctx := context.Background()

	_, err := svc.SetPayoutMethod(ctx, b.ID, MethodConnectTransfer, PayoutDetails{})
	if !errors.Is(err, ErrMissingDestination) {
		t.Fatalf("expected ErrMissingDestination, got %v", err)
	}

	updated, err := svc.SetPayoutMethod(ctx, b.ID, MethodManualBank, PayoutDetails{BankAccountName: "Jane Doe", BankIBAN: "DE89370400440532013000"})
	if err != nil {
		t.Fatalf("set payout method: %v", err)
	}
	if updated.MaskedDestination() != "****3000" {
		t.Fatalf("unexpected masked destination %q", updated.MaskedDestination())
	}

	_, err = svc.SetPayoutMethod(ctx, uuid.New(), MethodPlatformBalance, PayoutDetails{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRejectsInvalidSplit(t *testing.T) {
	svc := NewService(newMemoryStore())
	_, err := svc.Create(context.Background(), &Beneficiary{
		WorkspaceID:        uuid.New(),
		Kind:               KindPartner,
		LeaderSplitPercent: decimal.NewFromInt(120),
	})
	if !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("expected ErrInvalidSplit, got %v", err)
	}

	created, err := svc.Create(context.Background(), &Beneficiary{
		WorkspaceID:     uuid.New(),
		Kind:            KindPartner,
		PayoutMethod:    MethodAggregatorPayout,
		AggregatorEmail: sql.NullString{String: "p@example.com", Valid: true},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
}
