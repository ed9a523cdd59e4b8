// Package metrics exposes prometheus instrumentation for the gateway.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "http_requests_total",
		Help:      "Client-facing requests by path and status code.",
	}, []string{"path", "status"})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "relay_duration_seconds",
		Help:      "Upstream relay duration by provider and transport.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider", "stream"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "upstream_errors_total",
		Help:      "Upstream dispatch failures by provider.",
	}, []string{"provider"})

	usageLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "usage_logs_total",
		Help:      "Usage log entries enqueued, split by estimation.",
	}, []string{"estimated"})

	usageEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "usage_enqueue_failures_total",
		Help:      "Usage log entries dropped because the queue rejected them.",
	})

	settlementBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "settlement_batches_total",
		Help:      "Settlement batch outcomes.",
	}, []string{"outcome"})
)

// RecordRequest counts one finished client-facing request.
func RecordRequest(path, status string) {
	requestsTotal.WithLabelValues(path, status).Inc()
}

// RecordRelay observes the duration of one upstream relay.
func RecordRelay(provider string, stream bool, start time.Time) {
	label := "false"
	if stream {
		label = "true"
	}
	relayDuration.WithLabelValues(provider, label).Observe(time.Since(start).Seconds())
}

// RecordUpstreamError counts one upstream dispatch failure.
func RecordUpstreamError(provider string) {
	upstreamErrorsTotal.WithLabelValues(provider).Inc()
}

// RecordUsageLog counts one enqueued usage log entry.
func RecordUsageLog(estimated bool) {
	label := "false"
	if estimated {
		label = "true"
	}
	usageLogsTotal.WithLabelValues(label).Inc()
}

// RecordUsageEnqueueFailure counts one dropped usage log entry.
func RecordUsageEnqueueFailure() {
	usageEnqueueFailures.Inc()
}

// RecordSettlementBatch counts one settlement batch outcome
// ("ack", "nack" or "drop").
func RecordSettlementBatch(outcome string) {
	settlementBatches.WithLabelValues(outcome).Inc()
}

// Handler serves the prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
