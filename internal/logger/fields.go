package logger

import "log/slog"

// Field keys shared by every protocol adapter so LDAP, RADIUS and HTTP log
// lines can be queried the same way.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyProtocol   = "protocol"
	KeyOperation  = "operation"
	KeyMessageID  = "message_id"
	KeyResultCode = "result_code"
	KeyResult     = "result"

	KeyClientIP   = "client_ip"
	KeyClientAddr = "client_addr"
	KeyBindDN     = "bind_dn"
	KeyUsername   = "username"
	KeyUserID     = "user_id"

	KeyBaseDN    = "base_dn"
	KeyScope     = "scope"
	KeyFilter    = "filter"
	KeyEntries   = "entries"
	KeyPageSize  = "page_size"
	KeySizeLimit = "size_limit"

	KeyProvider   = "provider"
	KeyDatastore  = "datastore"
	KeySessionID  = "session_id"
	KeyListenAddr = "listen_addr"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns a slog.Attr for an error, tolerating nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ClientIP returns a slog.Attr for the peer address.
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// BindDN returns a slog.Attr for a distinguished name presented on bind.
func BindDN(dn string) slog.Attr {
	return slog.String(KeyBindDN, dn)
}

// Username returns a slog.Attr for a login name.
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// ResultCode returns a slog.Attr for an LDAP result code.
func ResultCode(code uint16) slog.Attr {
	return slog.Int(KeyResultCode, int(code))
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
