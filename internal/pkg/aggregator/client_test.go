package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreatePayoutSendsIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payouts" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Idempotency-Key") != "batch-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("missing idempotency key"))
			return
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req PayoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount != 2500 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"po_1","reference":"batch-1","status":"completed"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", time.Second)
	res, err := client.CreatePayout(context.Background(), PayoutRequest{
		Reference:      "batch-1",
		RecipientEmail: "partner@example.com",
		Amount:         2500,
		Currency:       "usd",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ID != "po_1" || res.Status != StatusCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCreatePayoutClientErrorIsDefinitive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"recipient_invalid"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", time.Second)
	_, err := client.CreatePayout(context.Background(), PayoutRequest{Reference: "b"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsAmbiguous(err) {
		t.Fatalf("expected 4xx to be definitive, got %v", err)
	}
	if !strings.Contains(err.Error(), "recipient_invalid") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestCreatePayoutServerErrorIsAmbiguous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", time.Second)
	_, err := client.CreatePayout(context.Background(), PayoutRequest{Reference: "b"})
	if !IsAmbiguous(err) {
		t.Fatalf("expected 5xx to be ambiguous, got %v", err)
	}
}

func TestCreateRewardTimeoutIsAmbiguous(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", 50*time.Millisecond)
	_, err := client.CreateReward(context.Background(), RewardRequest{Reference: "r"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !IsAmbiguous(err) {
		t.Fatalf("expected timeout to be ambiguous, got %v", err)
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestCreatePayoutRefusedConnectionIsDefinitive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := NewClient("http://"+addr, "key", time.Second)
	_, err = client.CreatePayout(context.Background(), PayoutRequest{Reference: "b"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsAmbiguous(err) {
		t.Fatalf("expected refused dial to be definitive, got %v", err)
	}
}

func TestFindRewardNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("reference") != "gc-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "key", time.Second)
	_, err := client.FindReward(context.Background(), "gc-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreatePayoutEmptyBaseURL(t *testing.T) {
	client := NewClient("", "key", time.Second)
	_, err := client.CreatePayout(context.Background(), PayoutRequest{})
	if err == nil || !strings.Contains(err.Error(), "base_url is empty") {
		t.Fatalf("expected config error, got %v", err)
	}
	if IsAmbiguous(err) {
		t.Fatalf("config errors must be definitive")
	}
}
