// Package aggregator is the HTTP client for the payout aggregator, which
// handles email-addressed payouts and gift card rewards.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"
)

const defaultTimeout = 20 * time.Second

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

// ErrNotFound is returned by lookups when the aggregator has no record of the reference.
var ErrNotFound = errors.New("aggregator: reference not found")

// Client represents the aggregator HTTP client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// PayoutRequest sends money to an account identified by email.
type PayoutRequest struct {
	Reference      string `json:"reference"`
	RecipientEmail string `json:"recipient_email"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// RewardRequest issues a gift card.
type RewardRequest struct {
	Reference      string `json:"reference"`
	RecipientEmail string `json:"recipient_email"`
	Product        string `json:"product"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// Result is the aggregator view of a payout or reward.
type Result struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Error describes a failed aggregator call. Ambiguous errors mean the
// request may have been applied remotely.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Ambiguous  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("aggregator %s http error: status=%d body=%s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("aggregator %s error: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAmbiguous reports whether err leaves the remote outcome unknown.
func IsAmbiguous(err error) bool {
	var aggErr *Error
	if errors.As(err, &aggErr) {
		return aggErr.Ambiguous
	}
	return false
}

// NewClient creates a new aggregator client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// CreatePayout submits a payout. Reference doubles as the idempotency key.
func (c *Client) CreatePayout(ctx context.Context, p PayoutRequest) (*Result, error) {
	return c.create(ctx, "payout", "/v1/payouts", p.Reference, p)
}

// FindPayout looks a payout up by its reference.
func (c *Client) FindPayout(ctx context.Context, reference string) (*Result, error) {
	return c.find(ctx, "payout lookup", "/v1/payouts", reference)
}

// CreateReward issues a gift card. Reference doubles as the idempotency key.
func (c *Client) CreateReward(ctx context.Context, r RewardRequest) (*Result, error) {
	return c.create(ctx, "reward", "/v1/rewards", r.Reference, r)
}

// FindReward looks a reward up by its reference.
func (c *Client) FindReward(ctx context.Context, reference string) (*Result, error) {
	return c.find(ctx, "reward lookup", "/v1/rewards", reference)
}

func (c *Client) create(ctx context.Context, op, path, idempotencyKey string, body interface{}) (*Result, error) {
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	return c.do(ctx, op, req)
}

func (c *Client) find(ctx context.Context, op, path, reference string) (*Result, error) {
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}

	u := c.baseURL + path + "?reference=" + url.QueryEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	res, err := c.do(ctx, op, req)
	var aggErr *Error
	if errors.As(err, &aggErr) && aggErr.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return res, err
}

func (c *Client) checkConfig(op string) error {
	if c == nil || c.http == nil {
		return &Error{Op: op, Err: errors.New("client is nil")}
	}
	if strings.TrimSpace(c.baseURL) == "" {
		return &Error{Op: op, Err: errors.New("base_url is empty")}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op string, req *http.Request) (*Result, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, op, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		// the request reached the server; the outcome is unknown
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Ambiguous: true, Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Ambiguous:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusConflict,
		}
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Ambiguous: true, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &result, nil
}

func classifyRequestError(ctx context.Context, op string, err error) error {
	if isTimeoutError(ctx, err) {
		return &Error{Op: op + " timeout", Ambiguous: true, Err: err}
	}
	if isNetworkError(err) {
		// a failed dial means nothing reached the aggregator
		return &Error{Op: op + " network", Ambiguous: !isDialError(err), Err: err}
	}
	return &Error{Op: op, Ambiguous: true, Err: err}
}

func isDialError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
