package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_requests_total",
		Help: "Total number of checkout requests by outcome",
	}, []string{"outcome"})

	CheckoutRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rejections_total",
		Help: "Total number of rejected checkout requests",
	}, []string{"reason"})

	CatalogLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_lookup_latency_seconds",
		Help:    "Latency of catalog price lookups",
		Buckets: prometheus.DefBuckets,
	})

	CatalogCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_results_total",
		Help: "Display cache lookups by result",
	}, []string{"result"})

	PaymentSessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_session_latency_seconds",
		Help:    "Latency of hosted checkout session creation",
		Buckets: prometheus.DefBuckets,
	})

	PaymentSessionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_session_failures_total",
		Help: "Total number of failed checkout session creations",
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation",
	}, []string{"op"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Checkout notifications handed to the messaging API",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
