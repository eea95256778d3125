package giftcard

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/partnerlink/settlement-api/internal/pkg/aggregator"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
)

// Fulfiller issues gift cards. Issue errors follow the payout rail contract:
// apperr.ExternalTransfer when nothing was issued, ExternalTransferAmbiguous
// when the outcome is unknown. Lookup returns ErrFulfillmentMissing when the
// provider never saw the redemption.
type Fulfiller interface {
	Issue(ctx context.Context, req FulfillmentRequest) (*Fulfillment, error)
	Lookup(ctx context.Context, redemptionID uuid.UUID) (*Fulfillment, error)
}

// RewardClient is the subset of the aggregator client used for gift cards.
type RewardClient interface {
	CreateReward(ctx context.Context, r aggregator.RewardRequest) (*aggregator.Result, error)
	FindReward(ctx context.Context, reference string) (*aggregator.Result, error)
}

// AggregatorFulfiller issues rewards through the aggregator, keyed by
// redemption id.
type AggregatorFulfiller struct {
	client RewardClient
}

func NewAggregatorFulfiller(client RewardClient) *AggregatorFulfiller {
	return &AggregatorFulfiller{client: client}
}

func (f *AggregatorFulfiller) Issue(ctx context.Context, req FulfillmentRequest) (*Fulfillment, error) {
	res, err := f.client.CreateReward(ctx, aggregator.RewardRequest{
		Reference:      req.RedemptionID.String(),
		RecipientEmail: req.RecipientEmail,
		Product:        req.CardType,
		Amount:         req.Amount,
		Currency:       req.Currency,
	})
	if err != nil {
		if aggregator.IsAmbiguous(err) {
			return nil, apperr.ExternalTransferAmbiguous("reward_outcome_unknown", err)
		}
		return nil, apperr.ExternalTransfer("reward_rejected", err)
	}
	return fulfillmentOf(res), nil
}

func (f *AggregatorFulfiller) Lookup(ctx context.Context, redemptionID uuid.UUID) (*Fulfillment, error) {
	res, err := f.client.FindReward(ctx, redemptionID.String())
	if errors.Is(err, aggregator.ErrNotFound) {
		return nil, ErrFulfillmentMissing
	}
	if err != nil {
		return nil, err
	}
	return fulfillmentOf(res), nil
}

func fulfillmentOf(res *aggregator.Result) *Fulfillment {
	out := &Fulfillment{ExternalID: res.ID, Status: StatusPending, FailureReason: res.FailureReason}
	switch res.Status {
	case aggregator.StatusCompleted:
		out.Status = StatusDelivered
	case aggregator.StatusFailed:
		out.Status = StatusFailed
		if out.FailureReason == "" {
			out.FailureReason = "reward_failed"
		}
	}
	return out
}
