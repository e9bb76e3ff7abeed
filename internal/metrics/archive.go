package metrics

import (
	"time"

	"github.com/jgivc/netfshare/internal/service/archive"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type archiveMetrics struct {
	requests           *prometheus.CounterVec
	generationDuration prometheus.Histogram
	generatedBytes     prometheus.Counter
}

// NewArchiveMetrics returns nil if metrics are not enabled.
func NewArchiveMetrics() archive.Metrics {
	if !IsEnabled() {
		return nil
	}

	return newArchiveMetrics(GetRegistry())
}

func newArchiveMetrics(reg prometheus.Registerer) *archiveMetrics {
	return &archiveMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_requests_total",
				Help:      "Archive requests by outcome (hit, generated, failed)",
			},
			[]string{"result"},
		),
		generationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_generation_duration_seconds",
				Help:      "Time spent generating archives",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		generatedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_generated_bytes_total",
				Help:      "Total size of generated archives",
			},
		),
	}
}

func (m *archiveMetrics) CacheHit() {
	m.requests.WithLabelValues("hit").Inc()
}

func (m *archiveMetrics) ObserveGeneration(bytes int64, duration time.Duration) {
	m.requests.WithLabelValues("generated").Inc()
	m.generationDuration.Observe(duration.Seconds())
	m.generatedBytes.Add(float64(bytes))
}

func (m *archiveMetrics) GenerationFailed() {
	m.requests.WithLabelValues("failed").Inc()
}
