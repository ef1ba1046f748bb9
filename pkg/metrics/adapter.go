package metrics

// ConnectionMetrics tracks the connection lifecycle of a TCP adapter.
//
// Pass nil to disable collection:
//
//	adapter := ldap.New(cfg, tree, authenticator, gate, nil)
type ConnectionMetrics interface {
	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionRejected counts connections refused by the access
	// gate or the connection limit.
	RecordConnectionRejected(reason string)

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed after the
	// shutdown timeout expired.
	RecordConnectionForceClosed()

	// SetActiveConnections updates the current connection gauge.
	SetActiveConnections(count int32)
}

// RecordConnectionAccepted is the nil-safe form of m.RecordConnectionAccepted.
func RecordConnectionAccepted(m ConnectionMetrics) {
	if m != nil {
		m.RecordConnectionAccepted()
	}
}

// RecordConnectionRejected is the nil-safe form of m.RecordConnectionRejected.
func RecordConnectionRejected(m ConnectionMetrics, reason string) {
	if m != nil {
		m.RecordConnectionRejected(reason)
	}
}

// RecordConnectionClosed is the nil-safe form of m.RecordConnectionClosed.
func RecordConnectionClosed(m ConnectionMetrics) {
	if m != nil {
		m.RecordConnectionClosed()
	}
}

// RecordConnectionForceClosed is the nil-safe form of m.RecordConnectionForceClosed.
func RecordConnectionForceClosed(m ConnectionMetrics) {
	if m != nil {
		m.RecordConnectionForceClosed()
	}
}

// SetActiveConnections is the nil-safe form of m.SetActiveConnections.
func SetActiveConnections(m ConnectionMetrics, count int32) {
	if m != nil {
		m.SetActiveConnections(count)
	}
}
