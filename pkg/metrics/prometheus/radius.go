package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dapper/pkg/metrics"
)

type radiusMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	dropped  *prometheus.CounterVec
}

// NewRADIUSMetrics returns nil if metrics are not enabled.
func NewRADIUSMetrics() metrics.RADIUSMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &radiusMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_radius_requests_total",
			Help: "Answered RADIUS Access-Requests by reply code",
		}, []string{"reply"}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dapper_radius_request_duration_milliseconds",
			Help:    "Duration of RADIUS Access-Request handling in milliseconds",
			Buckets: durationBuckets,
		}),
		dropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dapper_radius_dropped_total",
			Help: "RADIUS packets dropped without reply",
		}, []string{"reason"}),
	}
}

func (m *radiusMetrics) RecordRequest(reply string, duration time.Duration) {
	m.requests.WithLabelValues(reply).Inc()
	m.duration.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *radiusMetrics) RecordDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}
