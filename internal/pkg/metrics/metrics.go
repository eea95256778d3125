// Package metrics exposes Prometheus instruments for the settlement engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "settlement"

var (
	// CommissionsCreated counts inserted commission rows by role (direct, split, clawback).
	CommissionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commission",
		Name:      "created_total",
		Help:      "Commission rows created.",
	}, []string{"role"})

	CommissionsMatured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commission",
		Name:      "matured_total",
		Help:      "Commissions moved from PENDING to PROCEED.",
	})

	Clawbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commission",
		Name:      "clawbacks_total",
		Help:      "Clawback rows created.",
	})

	PayoutBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payout",
		Name:      "batches_total",
		Help:      "Payout batch transitions by method and resulting status.",
	}, []string{"method", "status"})

	PayoutAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payout",
		Name:      "confirmed_amount_minor_total",
		Help:      "Confirmed payout amount in minor currency units.",
	}, []string{"method"})

	GiftCards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "giftcard",
		Name:      "redemptions_total",
		Help:      "Gift card redemptions by resulting status.",
	}, []string{"status"})

	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "webhooks_total",
		Help:      "Webhook deliveries by provider and result.",
	}, []string{"provider", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status class.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	Panics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "panics_total",
		Help:      "Handler panics recovered.",
	})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of scheduled sweeps.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"job"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
