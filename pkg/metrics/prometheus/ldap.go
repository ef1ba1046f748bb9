// Package prometheus provides the Prometheus-backed implementations of the
// pkg/metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dapper/pkg/metrics"
)

// durationBuckets are shared by every request histogram, in milliseconds.
var durationBuckets = []float64{
	0.5, // in-memory binds and base searches
	1,
	5,
	10,
	50, // argon2 verification
	100,
	500,
	1000, // upstream RADIUS round trips
	5000,
}

type connectionMetrics struct {
	accepted    prometheus.Counter
	rejected    *prometheus.CounterVec
	closed      prometheus.Counter
	forceClosed prometheus.Counter
	active      prometheus.Gauge
}

func newConnectionMetrics(reg prometheus.Registerer, protocol string) connectionMetrics {
	labels := prometheus.Labels{"protocol": protocol}
	return connectionMetrics{
		accepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "dapper_connections_accepted_total",
			Help:        "Total number of accepted connections",
			ConstLabels: labels,
		}),
		rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name:        "dapper_connections_rejected_total",
			Help:        "Total number of connections refused before serving",
			ConstLabels: labels,
		}, []string{"reason"}),
		closed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "dapper_connections_closed_total",
			Help:        "Total number of closed connections",
			ConstLabels: labels,
		}),
		forceClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "dapper_connections_force_closed_total",
			Help:        "Connections closed after the shutdown timeout",
			ConstLabels: labels,
		}),
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "dapper_connections_active",
			Help:        "Currently open connections",
			ConstLabels: labels,
		}),
	}
}

func (m *connectionMetrics) RecordConnectionAccepted() { m.accepted.Inc() }
func (m *connectionMetrics) RecordConnectionRejected(r string) { m.rejected.WithLabelValues(r).Inc() }
func (m *connectionMetrics) RecordConnectionClosed() { m.closed.Inc() }
func (m *connectionMetrics) RecordConnectionForceClosed() { m.forceClosed.Inc() }
func (m *connectionMetrics) SetActiveConnections(count int32) { m.active.Set(float64(count)) }

type ldapMetrics struct {
	connectionMetrics
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	entries    prometheus.Histogram
}

// NewLDAPMetrics returns nil if metrics are not enabled.
func NewLDAPMetrics() metrics.LDAPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &ldapMetrics{
		connectionMetrics: newConnectionMetrics(reg, "ldap"),
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_ldap_operations_total",
			Help: "Total LDAP operations by operation and result code",
		}, []string{"operation", "result"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dapper_ldap_operation_duration_milliseconds",
			Help:    "Duration of LDAP operations in milliseconds",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		entries: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dapper_ldap_search_entries",
			Help:    "Entries returned per search request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *ldapMetrics) RecordOperation(operation, resultCode string, duration time.Duration) {
	m.operations.WithLabelValues(operation, resultCode).Inc()
	m.duration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *ldapMetrics) RecordSearchEntries(count int) {
	m.entries.Observe(float64(count))
}
