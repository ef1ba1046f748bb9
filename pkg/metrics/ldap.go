package metrics

import "time"

// LDAPMetrics provides observability for the LDAP adapter.
type LDAPMetrics interface {
	ConnectionMetrics

	// RecordOperation records a completed LDAP operation.
	//
	// Parameters:
	//   - operation: "bind", "search", "unbind", ...
	//   - resultCode: LDAP result name, e.g. "Success", "Invalid Credentials"
	//   - duration: time spent handling the request
	RecordOperation(operation string, resultCode string, duration time.Duration)

	// RecordSearchEntries records how many entries a search returned.
	RecordSearchEntries(count int)
}

// RecordLDAPOperation is the nil-safe form of m.RecordOperation.
func RecordLDAPOperation(m LDAPMetrics, operation, resultCode string, duration time.Duration) {
	if m != nil {
		m.RecordOperation(operation, resultCode, duration)
	}
}

// RecordSearchEntries is the nil-safe form of m.RecordSearchEntries.
func RecordSearchEntries(m LDAPMetrics, count int) {
	if m != nil {
		m.RecordSearchEntries(count)
	}
}
