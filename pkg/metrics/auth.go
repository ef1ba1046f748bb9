package metrics

import "time"

// Authentication outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AuthMetrics records authentication attempts per provider.
type AuthMetrics interface {
	RecordAuthentication(provider, outcome string, duration time.Duration)

	// RecordPasswordCached counts passwords cached by fallback-radius,
	// labelled by whether the datastore write succeeded.
	RecordPasswordCached(persisted bool)
}

// RecordAuthentication is the nil-safe form of m.RecordAuthentication.
func RecordAuthentication(m AuthMetrics, provider, outcome string, duration time.Duration) {
	if m != nil {
		m.RecordAuthentication(provider, outcome, duration)
	}
}

// RecordPasswordCached is the nil-safe form of m.RecordPasswordCached.
func RecordPasswordCached(m AuthMetrics, persisted bool) {
	if m != nil {
		m.RecordPasswordCached(persisted)
	}
}
