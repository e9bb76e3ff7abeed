package metrics

import (
	"testing"
	"time"

	"github.com/jgivc/netfshare/internal/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestArchiveMetrics(t *testing.T) {
	m := newArchiveMetrics(prometheus.NewRegistry())

	m.CacheHit()
	m.CacheHit()
	m.ObserveGeneration(2048, 150*time.Millisecond)
	m.GenerationFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("failed")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.generatedBytes))
}

func TestSessionMetrics(t *testing.T) {
	m := newSessionMetrics(prometheus.NewRegistry())

	m.RecordTransfer(entity.AuditKindDownload, 0)
	m.RecordTransfer(entity.AuditKindUpload, 3)
	m.ObserveSweep(entity.SweepResult{Active: 2, Inactive: 5}, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues(entity.AuditKindDownload)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.uploadedFiles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.clients.WithLabelValues("active")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.clients.WithLabelValues("inactive")))

	m.RecordReset(entity.ResetResult{Clients: 7})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))
	assert.Equal(t, 0, testutil.CollectAndCount(m.clients))
}

func TestDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry initialized by another test")
	}

	assert.Nil(t, NewArchiveMetrics())
	assert.Nil(t, NewSessionMetrics())
}
