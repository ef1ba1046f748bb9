// Package metrics defines the optional observability interfaces used by the
// adapters, the authentication chain and the API.
//
// Every interface is nil-safe through the package-level helpers: passing a nil
// implementation disables collection with zero overhead. The Prometheus
// implementations live in pkg/metrics/prometheus and return nil until
// InitRegistry has been called.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection. It is idempotent and returns the
// process registry, which already carries the Go and process collectors.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset disables metrics again. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

// Handler serves the registry in the Prometheus exposition format. When
// metrics are disabled it answers 404.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
