package metrics

import "time"

// APIMetrics provides observability for the REST API.
type APIMetrics interface {
	// RecordRequest records a served HTTP request by route pattern.
	RecordRequest(method, route string, status int, duration time.Duration)

	// SetActiveSessions updates the live session gauge.
	SetActiveSessions(count int)
}

// RecordAPIRequest is the nil-safe form of m.RecordRequest.
func RecordAPIRequest(m APIMetrics, method, route string, status int, duration time.Duration) {
	if m != nil {
		m.RecordRequest(method, route, status, duration)
	}
}

// SetActiveSessions is the nil-safe form of m.SetActiveSessions.
func SetActiveSessions(m APIMetrics, count int) {
	if m != nil {
		m.SetActiveSessions(count)
	}
}
