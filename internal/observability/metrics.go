package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amfgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"gateway", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amfgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"gateway", "method", "path", "status"},
	)
	envelopesParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amfgate",
			Subsystem: "envelope",
			Name:      "parsed_total",
			Help:      "Envelopes parsed successfully.",
		},
		[]string{"gateway", "version", "encoding"},
	)
	envelopeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amfgate",
			Subsystem: "envelope",
			Name:      "failures_total",
			Help:      "Envelopes rejected by the parser.",
		},
		[]string{"gateway", "reason"},
	)
	envelopeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amfgate",
			Subsystem: "envelope",
			Name:      "size_bytes",
			Help:      "Raw envelope size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"gateway"},
	)
	envelopeBodies = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amfgate",
			Subsystem: "envelope",
			Name:      "bodies",
			Help:      "Body records per parsed envelope.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
		[]string{"gateway"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			envelopesParsed,
			envelopeFailures,
			envelopeBytes,
			envelopeBodies,
		)
	})
}

func RecordHTTPRequest(gateway, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(gateway, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(gateway, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEnvelope(gateway, version, encoding string, size, bodies int) {
	RegisterMetrics()
	envelopesParsed.WithLabelValues(gateway, version, encoding).Inc()
	envelopeBytes.WithLabelValues(gateway).Observe(float64(size))
	envelopeBodies.WithLabelValues(gateway).Observe(float64(bodies))
}

// RecordEnvelopeFailure counts a rejected envelope. reason should be a small
// fixed set, e.g. "version" or "body".
func RecordEnvelopeFailure(gateway, reason string, size int) {
	RegisterMetrics()
	envelopeFailures.WithLabelValues(gateway, reason).Inc()
	envelopeBytes.WithLabelValues(gateway).Observe(float64(size))
}
