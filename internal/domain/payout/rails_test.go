package payout

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/partnerlink/settlement-api/internal/pkg/aggregator"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/storage"
	"github.com/partnerlink/settlement-api/internal/pkg/stripeconnect"
)

func TestManualRailWritesInstructions(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	rail := NewManualRail(store)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	req := TransferRequest{
		BatchID:       uuid.New(),
		BeneficiaryID: uuid.New(),
		Destination:   "DE89370400440532013000",
		AccountName:   "Jane Doe",
		Amount:        12345,
		Currency:      "eur",
		CommissionIDs: []uuid.UUID{uuid.New(), uuid.New()},
		CreatedAt:     created,
	}

	res, err := rail.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, TransferPending, res.Status)
	assert.Equal(t, "manual-payouts/2026/03/14/"+req.BatchID.String()+".csv", res.ExternalID)

	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(res.ExternalID)))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		req.BatchID.String(), req.BeneficiaryID.String(), "Jane Doe", "DE89370400440532013000",
		"12345", "eur", "2", "2026-03-14T09:30:00Z",
	}, rows[1])

	_, err = rail.Lookup(context.Background(), req.BatchID)
	assert.ErrorIs(t, err, ErrLookupNotSupported)

	url, ok, err := rail.InstructionURL(context.Background(), res.ExternalID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "file://"+filepath.Join(dir, filepath.FromSlash(res.ExternalID)), url)

	_, ok, err = rail.InstructionURL(context.Background(), "manual-payouts/missing.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAggregatorResultMapping(t *testing.T) {
	tests := []struct {
		status string
		want   TransferStatus
		reason string
	}{
		{aggregator.StatusCompleted, TransferPaid, ""},
		{aggregator.StatusPending, TransferPending, ""},
		{aggregator.StatusFailed, TransferFailed, "aggregator_failed"},
		{"processing", TransferPending, ""},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := aggregatorResult(&aggregator.Result{ID: "po_1", Status: tt.status})
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.reason, got.FailureReason)
			assert.Equal(t, "po_1", got.ExternalID)
		})
	}
}

type stubStripe struct {
	createErr error
	found     *stripeconnect.Transfer
	findErr   error
	requests  []stripeconnect.TransferRequest
}

func (s *stubStripe) CreateTransfer(ctx context.Context, req stripeconnect.TransferRequest) (*stripeconnect.Transfer, error) {
	s.requests = append(s.requests, req)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &stripeconnect.Transfer{ID: "tr_1", Amount: req.Amount}, nil
}

func (s *stubStripe) FindTransfer(ctx context.Context, reference string) (*stripeconnect.Transfer, error) {
	return s.found, s.findErr
}

func TestConnectRailClassifiesErrors(t *testing.T) {
	req := TransferRequest{BatchID: uuid.New(), BeneficiaryID: uuid.New(), Destination: "acct_1", Amount: 500, Currency: "usd"}

	stub := &stubStripe{}
	res, err := NewConnectRail(stub).Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, TransferPaid, res.Status)
	assert.Equal(t, req.BatchID.String(), stub.requests[0].Reference)
	assert.Equal(t, req.BatchID.String(), stub.requests[0].Metadata[stripeconnect.MetadataBatchKey])

	stub = &stubStripe{createErr: &stripe.Error{
		HTTPStatusCode: http.StatusBadRequest,
		Type:           stripe.ErrorTypeInvalidRequest,
		Code:           stripe.ErrorCode("account_invalid"),
	}}
	_, err = NewConnectRail(stub).Transfer(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrExternalTransfer)
	assert.Equal(t, "account_invalid", apperr.ReasonOf(err))

	stub = &stubStripe{createErr: errors.New("connection reset by peer")}
	_, err = NewConnectRail(stub).Transfer(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrExternalTransferAmbiguous)
}

func TestConnectRailLookup(t *testing.T) {
	id := uuid.New()

	_, err := NewConnectRail(&stubStripe{findErr: stripeconnect.ErrNotFound}).Lookup(context.Background(), id)
	assert.ErrorIs(t, err, ErrTransferNotFound)

	res, err := NewConnectRail(&stubStripe{found: &stripeconnect.Transfer{ID: "tr_9", Reversed: true}}).Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, TransferFailed, res.Status)
	assert.Equal(t, "transfer_reversed", res.FailureReason)
}
