package ldap

import (
	"context"
	"errors"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
)

// errInvalidCredentials hides why a bind was refused. The reason is logged
// at debug level.
var errInvalidCredentials = goldap.NewError(goldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))

func (c *connection) handleBind(ctx context.Context, msg *message) error {
	var name string
	if len(msg.op.Children) > 1 {
		name = string(msg.op.Children[1].Data.Bytes())
	}
	ctx, finish := c.begin(ctx, "bind", telemetry.SpanLDAPBind, msg, telemetry.LDAPBindDN(name))

	err := c.bind(ctx, msg.op)
	code, matched, diagnostic := resultCode(err)
	finish(code)
	return c.write(envelope(msg.id, resultOp(goldap.ApplicationBindResponse, code, matched, diagnostic)))
}

// bind authenticates a simple BindRequest. Every attempt first resets the
// connection to anonymous, so a failed bind never keeps an earlier identity.
func (c *connection) bind(ctx context.Context, op *ber.Packet) error {
	if len(op.Children) != 3 {
		return newError(goldap.LDAPResultProtocolError, "malformed bind request")
	}
	if version, ok := op.Children[0].Value.(int64); !ok || version != 3 {
		return newError(goldap.LDAPResultProtocolError, "only LDAPv3 is supported")
	}
	name := string(op.Children[1].Data.Bytes())
	choice := op.Children[2]
	if choice.ClassType != ber.ClassContext || choice.Tag != 0 {
		return newError(goldap.LDAPResultAuthMethodNotSupported, "only simple bind is supported")
	}
	password := string(choice.Data.Bytes())

	c.boundID, c.boundDN = "", ""
	if name == "" && password == "" {
		logger.DebugCtx(ctx, "Anonymous bind")
		return nil
	}

	tree := c.server.tree
	entry, ok := tree.Lookup(name)
	if !ok {
		logger.DebugCtx(ctx, "Bind DN not found", logger.BindDN(name))
		return errInvalidCredentials
	}
	if entry.Projection.Kind != directory.KindUser {
		return newError(goldap.LDAPResultInsufficientAccessRights, "%s is not a user", name)
	}
	user, ok := tree.UserByID(entry.Projection.ID)
	if !ok {
		return errInvalidCredentials
	}
	if password == "" {
		logger.DebugCtx(ctx, "Bind without password", logger.BindDN(name))
		return errInvalidCredentials
	}
	if !user.Permissions.Bind {
		logger.DebugCtx(ctx, "Bind not permitted", logger.BindDN(name), logger.Username(user.Username))
		return errInvalidCredentials
	}

	_, err := c.server.authn.Authenticate(ctx, &auth.Request{
		User:        user,
		Password:    password,
		MFARequired: tree.MFARequired(name, user),
		Protocol:    protocolName,
		ClientIP:    c.clientIP,
	})
	if err != nil {
		return errInvalidCredentials
	}

	c.boundID, c.boundDN = user.ID, entry.DN
	logger.InfoCtx(ctx, "LDAP bind succeeded", logger.BindDN(entry.DN), logger.Username(user.Username))
	return nil
}
