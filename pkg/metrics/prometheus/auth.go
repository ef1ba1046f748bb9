package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dapper/pkg/metrics"
)

type authMetrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cached   *prometheus.CounterVec
}

// NewAuthMetrics returns nil if metrics are not enabled.
func NewAuthMetrics() metrics.AuthMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &authMetrics{
		attempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_auth_attempts_total",
			Help: "Authentication attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dapper_auth_duration_milliseconds",
			Help:    "Duration of authentication attempts in milliseconds",
			Buckets: durationBuckets,
		}, []string{"provider"}),
		cached: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_auth_passwords_cached_total",
			Help: "Passwords cached after upstream RADIUS success",
		}, []string{"persisted"}),
	}
}

func (m *authMetrics) RecordAuthentication(provider, outcome string, duration time.Duration) {
	m.attempts.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *authMetrics) RecordPasswordCached(persisted bool) {
	m.cached.WithLabelValues(strconv.FormatBool(persisted)).Inc()
}
