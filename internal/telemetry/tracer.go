package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for directory protocol spans.
const (
	AttrClientIP  = "client.ip"
	AttrProtocol  = "protocol.name"
	AttrOperation = "directory.operation"

	AttrLDAPMessageID  = "ldap.message_id"
	AttrLDAPBindDN     = "ldap.bind_dn"
	AttrLDAPBaseDN     = "ldap.base_dn"
	AttrLDAPScope      = "ldap.scope"
	AttrLDAPFilter     = "ldap.filter"
	AttrLDAPResultCode = "ldap.result_code"
	AttrLDAPEntries    = "ldap.entries"

	AttrRADIUSIdentifier = "radius.identifier"
	AttrRADIUSCode       = "radius.code"

	AttrUsername     = "user.name"
	AttrAuthProvider = "auth.provider"
)

// Span names.
const (
	SpanLDAPBind            = "ldap.bind"
	SpanLDAPSearch          = "ldap.search"
	SpanRADIUSAccessRequest = "radius.access_request"
	SpanAuthenticate        = "auth.authenticate"
	SpanSessionCreate       = "session.create"
)

func ClientIP(ip string) attribute.KeyValue { return attribute.String(AttrClientIP, ip) }

func Username(name string) attribute.KeyValue { return attribute.String(AttrUsername, name) }

func LDAPMessageID(id int64) attribute.KeyValue { return attribute.Int64(AttrLDAPMessageID, id) }

func LDAPBindDN(dn string) attribute.KeyValue { return attribute.String(AttrLDAPBindDN, dn) }

func LDAPBaseDN(dn string) attribute.KeyValue { return attribute.String(AttrLDAPBaseDN, dn) }

func LDAPScope(scope string) attribute.KeyValue { return attribute.String(AttrLDAPScope, scope) }

func LDAPFilter(filter string) attribute.KeyValue { return attribute.String(AttrLDAPFilter, filter) }

func LDAPResultCode(code uint16) attribute.KeyValue {
	return attribute.Int(AttrLDAPResultCode, int(code))
}

func LDAPEntries(n int) attribute.KeyValue { return attribute.Int(AttrLDAPEntries, n) }

func RADIUSIdentifier(id byte) attribute.KeyValue {
	return attribute.Int(AttrRADIUSIdentifier, int(id))
}

func RADIUSCode(code string) attribute.KeyValue { return attribute.String(AttrRADIUSCode, code) }

func AuthProvider(name string) attribute.KeyValue { return attribute.String(AttrAuthProvider, name) }

// StartProtocolSpan starts a server span "<protocol>.<operation>" tagged with
// the protocol name and client address.
func StartProtocolSpan(ctx context.Context, name, protocol, clientIP string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, attribute.String(AttrProtocol, protocol), ClientIP(clientIP))
	all = append(all, attrs...)
	return StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(all...))
}
