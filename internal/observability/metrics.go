package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the ArtLine domain counters.
type Metrics struct {
	JobsCreated    *prometheus.CounterVec
	JobsFinalized  *prometheus.CounterVec
	LedgerEntries  *prometheus.CounterVec
	ProviderCalls  *prometheus.CounterVec
	WebhookResults *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		JobsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_jobs_created_total",
			Help: "Generation jobs created, by kind.",
		}, []string{"kind"}),
		JobsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_jobs_finalized_total",
			Help: "Generation jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		LedgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_ledger_entries_total",
			Help: "Ledger entries written, by reason.",
		}, []string{"reason"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_provider_calls_total",
			Help: "Outbound provider calls, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		WebhookResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_webhook_results_total",
			Help: "Webhook deliveries, by result.",
		}, []string{"result"}),
	}
}

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artline_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artline_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
