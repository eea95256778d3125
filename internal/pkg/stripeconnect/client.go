// Package stripeconnect moves funds to Stripe connected accounts.
package stripeconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/transfer"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	MetadataBatchKey       = "payout_batch_id"
	MetadataBeneficiaryKey = "beneficiary_id"
)

// ErrNotFound means Stripe has no transfer for the reference.
var ErrNotFound = errors.New("stripe: transfer not found")

// Client wraps the Stripe transfers API.
type Client struct {
	transfers *transfer.Client
}

// TransferRequest moves Amount to the connected account. Reference is used
// both as the idempotency key and the transfer group so that a transfer can
// be found again after an ambiguous response.
type TransferRequest struct {
	Reference   string
	Destination string
	Amount      int64
	Currency    string
	Metadata    map[string]string
}

type Transfer struct {
	ID       string
	Amount   int64
	Reversed bool
	Metadata map[string]string
}

func NewClient(secretKey string) *Client {
	return NewClientWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

func NewClientWithBackend(secretKey string, backend stripe.Backend) *Client {
	return &Client{transfers: &transfer.Client{B: backend, Key: secretKey}}
}

// CreateTransfer submits a transfer. Retrying with the same Reference never
// creates a second transfer.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.Reference),
		Metadata:      req.Metadata,
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)

	t, err := c.transfers.New(params)
	if err != nil {
		return nil, err
	}
	return fromStripe(t), nil
}

// FindTransfer looks a transfer up by the reference used to create it.
func (c *Client) FindTransfer(ctx context.Context, reference string) (*Transfer, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(reference)}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	it := c.transfers.List(params)
	for it.Next() {
		return fromStripe(it.Transfer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func fromStripe(t *stripe.Transfer) *Transfer {
	return &Transfer{ID: t.ID, Amount: t.Amount, Reversed: t.Reversed, Metadata: t.Metadata}
}

// IsAmbiguous reports whether a failed call may still have moved money.
// Anything that is not a well-formed Stripe rejection is treated as unknown.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		return true
	}
	if se.HTTPStatusCode >= http.StatusInternalServerError || se.HTTPStatusCode == http.StatusConflict {
		return true
	}
	return se.Type == stripe.ErrorTypeAPI || se.Type == stripe.ErrorTypeIdempotency
}

// FailureCode returns the Stripe error code, or a generic one.
func FailureCode(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Code != "" {
		return string(se.Code)
	}
	return "stripe_transfer_error"
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func ParseEvent(payload []byte, header, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// TransferFromEvent decodes the transfer object carried by a transfer.* event.
func TransferFromEvent(event stripe.Event) (*Transfer, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	var t stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &t); err != nil {
		return nil, fmt.Errorf("decode transfer from event %s: %w", event.ID, err)
	}
	return fromStripe(&t), nil
}
