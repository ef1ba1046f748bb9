package radius

import (
	"context"
	"errors"
	"net"
	"time"

	goradius "layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
)

const protocolName = "radius"

// Reasons a packet is dropped without a reply.
const (
	dropAccessDenied    = "access_denied"
	dropUnsupportedCode = "unsupported_code"
	dropWriteFailed     = "write_failed"
)

var (
	errUnknownUser  = errors.New("unknown user")
	errNotPermitted = errors.New("radius login not permitted")
)

func (a *Adapter) handle(w goradius.ResponseWriter, r *goradius.Request) {
	clientIP := hostOf(r.RemoteAddr)

	if a.gate != nil && !a.gate.CheckAddr(r.RemoteAddr) {
		logger.Debug("RADIUS request denied by access policy", logger.KeyClientIP, clientIP)
		metrics.RecordRADIUSDropped(a.metrics, dropAccessDenied)
		return
	}
	if r.Code != goradius.CodeAccessRequest {
		logger.Debug("Dropping RADIUS packet", logger.KeyClientIP, clientIP, "code", r.Code.String())
		metrics.RecordRADIUSDropped(a.metrics, dropUnsupportedCode)
		return
	}

	start := time.Now()
	username := rfc2865.UserName_GetString(r.Packet)

	ctx, span := telemetry.StartProtocolSpan(r.Context(), telemetry.SpanRADIUSAccessRequest, protocolName, clientIP,
		telemetry.RADIUSIdentifier(r.Identifier),
		telemetry.Username(username))
	defer span.End()

	lc := logger.NewLogContext(protocolName, clientIP).
		WithOperation("access-request", int64(r.Identifier)).
		WithBind("", username).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	if nas, err := rfc2865.NASIPAddress_Lookup(r.Packet); err == nil {
		logger.DebugCtx(ctx, "RADIUS Access-Request", "nas_ip", nas.String())
	}

	code := goradius.CodeAccessReject
	if err := a.authenticate(ctx, r.Packet, username, clientIP); err != nil {
		logger.DebugCtx(ctx, "RADIUS login rejected", logger.Err(err))
	} else {
		code = goradius.CodeAccessAccept
		logger.InfoCtx(ctx, "RADIUS login accepted")
	}

	reply := code.String()
	telemetry.SetAttributes(ctx, telemetry.RADIUSCode(reply))
	if err := w.Write(r.Response(code)); err != nil {
		logger.WarnCtx(ctx, "Failed to write RADIUS reply", logger.Err(err))
		metrics.RecordRADIUSDropped(a.metrics, dropWriteFailed)
		return
	}
	metrics.RecordRADIUSRequest(a.metrics, reply, time.Since(start))
}

// authenticate resolves username and checks the password carried in p. A
// packet signed with the wrong secret decodes to a garbage password and is
// rejected here like any other bad password.
func (a *Adapter) authenticate(ctx context.Context, p *goradius.Packet, username, clientIP string) error {
	user, ok := a.lookup(username)
	if !ok {
		return errUnknownUser
	}
	if user.Deleted || !user.Permissions.Radius {
		return errNotPermitted
	}

	password, err := rfc2865.UserPassword_LookupString(p)
	if err != nil {
		return err
	}

	_, err = a.authn.Authenticate(ctx, &auth.Request{
		User:        user,
		Password:    password,
		MFARequired: a.config.MFARequired,
		Protocol:    protocolName,
		ClientIP:    clientIP,
	})
	return err
}

// lookup tries each configured key in order.
func (a *Adapter) lookup(name string) (*directory.User, bool) {
	if name == "" {
		return nil, false
	}
	for _, key := range a.config.Keys {
		var (
			u  *directory.User
			ok bool
		)
		switch key {
		case KeyUsername:
			u, ok = a.tree.User(name)
		case KeyEmail:
			u, ok = a.tree.UserByEmail(name)
		case KeyID:
			u, ok = a.tree.UserByID(name)
		}
		if ok {
			return u, true
		}
	}
	return nil, false
}

func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
