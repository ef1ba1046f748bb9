package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dapper/pkg/metrics"
)

type apiMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	sessions prometheus.Gauge
}

// NewAPIMetrics returns nil if metrics are not enabled.
func NewAPIMetrics() metrics.APIMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &apiMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_api_requests_total",
			Help: "HTTP requests served by the API",
		}, []string{"method", "route", "status"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dapper_api_request_duration_milliseconds",
			Help:    "Duration of API requests in milliseconds",
			Buckets: durationBuckets,
		}, []string{"method", "route"}),
		sessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dapper_sessions_active",
			Help: "Live API sessions",
		}),
	}
}

func (m *apiMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *apiMetrics) SetActiveSessions(count int) {
	m.sessions.Set(float64(count))
}
