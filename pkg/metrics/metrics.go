package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "Mail provider API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"operation", "status"},
	)

	SyncSessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_session_duration_seconds",
			Help:    "Duration of one account sync session",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"mode", "status"},
	)

	SyncPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_pages_fetched_total",
			Help: "Total provider result pages fetched",
		},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_ingested_total",
			Help: "Total email records handed to the ingestion writer",
		},
		[]string{"change_type"},
	)

	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_failures_total",
			Help: "Sync session failures",
		},
		[]string{"mode", "reason"},
	)

	LeaseSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_lease_skips_total",
			Help: "Sync attempts skipped because another session held the account lease",
		},
	)

	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"}, // validated, accepted, bad_signature, bad_request
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordProviderCall(operation, status string, duration time.Duration) {
	ProviderCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

func RecordSyncSession(mode, status string, duration time.Duration) {
	SyncSessionDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
