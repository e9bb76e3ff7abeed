package session

import (
	"time"

	"github.com/jgivc/netfshare/internal/entity"
)

// Metrics observes client sessions. A nil Metrics passed to the service
// disables collection.
type Metrics interface {
	RecordTransfer(kind string, files int)
	ObserveSweep(res entity.SweepResult, duration time.Duration)
	RecordReset(res entity.ResetResult)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransfer(string, int) {}
func (noopMetrics) ObserveSweep(entity.SweepResult, time.Duration) {}
func (noopMetrics) RecordReset(entity.ResetResult) {}
