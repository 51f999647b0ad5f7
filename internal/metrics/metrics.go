package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecoach_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradecoach_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecoach_chat_requests_total",
			Help: "Chat gateway requests by terminal outcome.",
		},
		[]string{"outcome"}, // cache_hit, async, fallback, burst_rejected, quota_rejected, error
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecoach_response_cache_hits_total",
			Help: "AI response cache hits (no quota charged).",
		},
	)

	FallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecoach_fallbacks_total",
			Help: "Synchronous fallbacks after async dispatch timeout or failure.",
		},
	)

	DegradedStoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecoach_degraded_store_total",
			Help: "Fail-open decisions taken because the counter store was unreachable.",
		},
		[]string{"operation"}, // burst_check, quota_peek, quota_commit, cache_get, cache_put
	)

	UpstreamDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradecoach_upstream_duration_seconds",
			Help:    "Latency of upstream AI completions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecoach_worker_queue_depth",
			Help: "Tasks waiting in the async worker queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ChatRequestsTotal,
		CacheHitsTotal,
		FallbacksTotal,
		DegradedStoreTotal,
		UpstreamDuration,
		WorkerQueueDepth,
	)
}
