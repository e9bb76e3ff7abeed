package metrics

import (
	"time"

	"github.com/jgivc/netfshare/internal/entity"
	"github.com/jgivc/netfshare/internal/service/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type sessionMetrics struct {
	transfers     *prometheus.CounterVec
	uploadedFiles prometheus.Counter
	clients       *prometheus.GaugeVec
	sweepDuration prometheus.Histogram
	resets        prometheus.Counter
}

// NewSessionMetrics returns nil if metrics are not enabled.
func NewSessionMetrics() session.Metrics {
	if !IsEnabled() {
		return nil
	}

	return newSessionMetrics(GetRegistry())
}

func newSessionMetrics(reg prometheus.Registerer) *sessionMetrics {
	return &sessionMetrics{
		transfers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Recorded transfers by kind",
			},
			[]string{"kind"},
		),
		uploadedFiles: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_files_total",
				Help:      "Files received in recorded uploads",
			},
		),
		clients: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clients",
				Help:      "Clients by state after the last liveness sweep",
			},
			[]string{"state"},
		),
		sweepDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of liveness sweeps",
				Buckets:   prometheus.DefBuckets,
			},
		),
		resets: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_resets_total",
				Help:      "Session resets",
			},
		),
	}
}

func (m *sessionMetrics) RecordTransfer(kind string, files int) {
	m.transfers.WithLabelValues(kind).Inc()
	if files > 0 {
		m.uploadedFiles.Add(float64(files))
	}
}

func (m *sessionMetrics) ObserveSweep(res entity.SweepResult, duration time.Duration) {
	m.clients.WithLabelValues("active").Set(float64(res.Active))
	m.clients.WithLabelValues("inactive").Set(float64(res.Inactive))
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *sessionMetrics) RecordReset(entity.ResetResult) {
	m.resets.Inc()
	m.clients.Reset()
}
