package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields for one protocol exchange.
type LogContext struct {
	TraceID   string
	SpanID    string
	Protocol  string // ldap, radius, http
	Operation string // bind, search, access-request, ...
	ClientIP  string // without port
	BindDN    string // DN presented on bind, or the connection's bound DN
	Username  string
	MessageID int64 // LDAP message ID or RADIUS identifier
	StartTime time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a request from clientIP over protocol.
func NewLogContext(protocol, clientIP string) *LogContext {
	return &LogContext{
		Protocol:  protocol,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone returns a copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithOperation returns a copy with the operation and message ID set.
func (lc *LogContext) WithOperation(op string, messageID int64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Operation = op
		c.MessageID = messageID
		c.StartTime = time.Now()
	}
	return c
}

// WithBind returns a copy with bind identity set.
func (lc *LogContext) WithBind(dn, username string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.BindDN = dn
		c.Username = username
	}
	return c
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns the milliseconds elapsed since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}
