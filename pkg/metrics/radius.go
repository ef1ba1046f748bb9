package metrics

import "time"

// RADIUSMetrics provides observability for the RADIUS adapter.
type RADIUSMetrics interface {
	// RecordRequest records an answered Access-Request with the reply code
	// ("Access-Accept" or "Access-Reject").
	RecordRequest(reply string, duration time.Duration)

	// RecordDropped counts packets dropped without a reply.
	RecordDropped(reason string)
}

// RecordRADIUSRequest is the nil-safe form of m.RecordRequest.
func RecordRADIUSRequest(m RADIUSMetrics, reply string, duration time.Duration) {
	if m != nil {
		m.RecordRequest(reply, duration)
	}
}

// RecordRADIUSDropped is the nil-safe form of m.RecordDropped.
func RecordRADIUSDropped(m RADIUSMetrics, reason string) {
	if m != nil {
		m.RecordDropped(reason)
	}
}
