package archive

import "time"

// Metrics observes the archive cache. A nil Metrics passed to the service
// disables collection.
type Metrics interface {
	// CacheHit records a request served by an existing artifact
	CacheHit()

	// ObserveGeneration records a successful generation
	ObserveGeneration(bytes int64, duration time.Duration)

	// GenerationFailed records a failed generation
	GenerationFailed()
}

type noopMetrics struct{}

func (noopMetrics) CacheHit() {}
func (noopMetrics) ObserveGeneration(int64, time.Duration) {}
func (noopMetrics) GenerationFailed() {}
