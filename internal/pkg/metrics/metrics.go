package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagora_requests_total",
		Help: "The total number of API requests processed",
	}, []string{"method", "path", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagora_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimitRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagora_rate_limit_rejects_total",
		Help: "Total requests rejected by the rate limiter",
	}, []string{"tenant"})

	IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagora_idempotent_replays_total",
		Help: "Total responses served from the idempotency store",
	}, []string{"endpoint"})

	AuthorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagora_authorizations_total",
		Help: "Total acquirer authorization attempts",
	}, []string{"adapter", "outcome"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagora_webhook_deliveries_total",
		Help: "Total webhook delivery attempts",
	}, []string{"outcome"})
)
