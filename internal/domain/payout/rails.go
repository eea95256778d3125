package payout

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/pkg/aggregator"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/storage"
	"github.com/partnerlink/settlement-api/internal/pkg/stripeconnect"
)

// Rail moves money for one payout method. Transfer errors must be
// apperr.ExternalTransfer (nothing moved) or apperr.ExternalTransferAmbiguous
// (outcome unknown). Lookup finds a transfer by batch id and returns
// ErrTransferNotFound when the rail never saw it.
type Rail interface {
	Method() beneficiary.PayoutMethod
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Lookup(ctx context.Context, batchID uuid.UUID) (*TransferResult, error)
}

// InstructionLocator is implemented by rails that export files for operators.
type InstructionLocator interface {
	InstructionURL(ctx context.Context, key string) (string, bool, error)
}

// StripeTransfers is the subset of the Stripe client the connect rail uses.
type StripeTransfers interface {
	CreateTransfer(ctx context.Context, req stripeconnect.TransferRequest) (*stripeconnect.Transfer, error)
	FindTransfer(ctx context.Context, reference string) (*stripeconnect.Transfer, error)
}

// ConnectRail pays connected accounts with Stripe transfers. Transfers are
// synchronous, so a successful call means the funds moved.
type ConnectRail struct {
	client StripeTransfers
}

func NewConnectRail(client StripeTransfers) *ConnectRail {
	return &ConnectRail{client: client}
}

func (r *ConnectRail) Method() beneficiary.PayoutMethod { return beneficiary.MethodConnectTransfer }

func (r *ConnectRail) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	t, err := r.client.CreateTransfer(ctx, stripeconnect.TransferRequest{
		Reference:   req.BatchID.String(),
		Destination: req.Destination,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Metadata: map[string]string{
			stripeconnect.MetadataBatchKey:       req.BatchID.String(),
			stripeconnect.MetadataBeneficiaryKey: req.BeneficiaryID.String(),
		},
	})
	if err != nil {
		if stripeconnect.IsAmbiguous(err) {
			return nil, apperr.ExternalTransferAmbiguous("stripe_outcome_unknown", err)
		}
		return nil, apperr.ExternalTransfer(stripeconnect.FailureCode(err), err)
	}
	return &TransferResult{ExternalID: t.ID, Status: TransferPaid}, nil
}

func (r *ConnectRail) Lookup(ctx context.Context, batchID uuid.UUID) (*TransferResult, error) {
	t, err := r.client.FindTransfer(ctx, batchID.String())
	if errors.Is(err, stripeconnect.ErrNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Reversed {
		return &TransferResult{ExternalID: t.ID, Status: TransferFailed, FailureReason: "transfer_reversed"}, nil
	}
	return &TransferResult{ExternalID: t.ID, Status: TransferPaid}, nil
}

// AggregatorPayouts is the subset of the aggregator client the payout rail uses.
type AggregatorPayouts interface {
	CreatePayout(ctx context.Context, p aggregator.PayoutRequest) (*aggregator.Result, error)
	FindPayout(ctx context.Context, reference string) (*aggregator.Result, error)
}

// AggregatorRail pays by email through the aggregator. Payouts usually
// complete asynchronously and are confirmed by webhook.
type AggregatorRail struct {
	client AggregatorPayouts
}

func NewAggregatorRail(client AggregatorPayouts) *AggregatorRail {
	return &AggregatorRail{client: client}
}

func (r *AggregatorRail) Method() beneficiary.PayoutMethod { return beneficiary.MethodAggregatorPayout }

func (r *AggregatorRail) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	res, err := r.client.CreatePayout(ctx, aggregator.PayoutRequest{
		Reference:      req.BatchID.String(),
		RecipientEmail: req.Destination,
		Amount:         req.Amount,
		Currency:       req.Currency,
	})
	if err != nil {
		if aggregator.IsAmbiguous(err) {
			return nil, apperr.ExternalTransferAmbiguous("aggregator_outcome_unknown", err)
		}
		return nil, apperr.ExternalTransfer("aggregator_rejected", err)
	}
	return aggregatorResult(res), nil
}

func (r *AggregatorRail) Lookup(ctx context.Context, batchID uuid.UUID) (*TransferResult, error) {
	res, err := r.client.FindPayout(ctx, batchID.String())
	if errors.Is(err, aggregator.ErrNotFound) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	return aggregatorResult(res), nil
}

func aggregatorResult(res *aggregator.Result) *TransferResult {
	out := &TransferResult{ExternalID: res.ID, FailureReason: res.FailureReason}
	switch res.Status {
	case aggregator.StatusCompleted:
		out.Status = TransferPaid
	case aggregator.StatusFailed:
		out.Status = TransferFailed
		if out.FailureReason == "" {
			out.FailureReason = "aggregator_failed"
		}
	default:
		out.Status = TransferPending
	}
	return out
}

// ManualRail exports a CSV instruction for an operator to execute by bank
// transfer. The batch stays CREATED until an admin completes or fails it.
type ManualRail struct {
	store  storage.Storage
	prefix string
}

func NewManualRail(store storage.Storage) *ManualRail {
	return &ManualRail{store: store, prefix: "manual-payouts"}
}

func (r *ManualRail) Method() beneficiary.PayoutMethod { return beneficiary.MethodManualBank }

// InstructionKey is where the CSV for a batch is written.
func (r *ManualRail) InstructionKey(batchID uuid.UUID, createdAt time.Time) string {
	return fmt.Sprintf("%s/%s/%s.csv", r.prefix, createdAt.UTC().Format("2006/01/02"), batchID)
}

func (r *ManualRail) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"batch_id", "beneficiary_id", "account_name", "iban", "amount_minor", "currency", "commission_count", "created_at"},
		{
			req.BatchID.String(),
			req.BeneficiaryID.String(),
			req.AccountName,
			req.Destination,
			strconv.FormatInt(req.Amount, 10),
			req.Currency,
			strconv.Itoa(len(req.CommissionIDs)),
			req.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, apperr.ExternalTransfer("manual_export_failed", err)
	}

	key := r.InstructionKey(req.BatchID, req.CreatedAt)
	if err := r.store.Put(ctx, key, &buf, "text/csv"); err != nil {
		return nil, apperr.ExternalTransfer("manual_export_failed", err)
	}
	return &TransferResult{ExternalID: key, Status: TransferPending}, nil
}

func (r *ManualRail) Lookup(ctx context.Context, batchID uuid.UUID) (*TransferResult, error) {
	return nil, ErrLookupNotSupported
}

// InstructionURL locates an exported instruction file. ok is false when the
// object is gone from the store.
func (r *ManualRail) InstructionURL(ctx context.Context, key string) (string, bool, error) {
	exists, err := r.store.Exists(ctx, key)
	if err != nil || !exists {
		return "", false, err
	}
	return r.store.GetURL(key), true, nil
}
