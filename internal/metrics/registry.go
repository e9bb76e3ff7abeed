// Package metrics provides Prometheus collectors for netfshare services.
//
// Metrics are optional. Without InitRegistry the constructors return nil and the
// services fall back to their no-op implementations.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netfshare"

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry with Go and process collectors.
// Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

func IsEnabled() bool {
	return GetRegistry() != nil
}

// Handler serves the global registry, or 404 when metrics are disabled.
func Handler() http.Handler {
	if !IsEnabled() {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}
