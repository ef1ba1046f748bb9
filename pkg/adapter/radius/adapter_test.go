package radius_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goradius "layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/adapter/radius"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/directory/directorytest"
)

const secret = "nas-secret"

func startServer(t *testing.T, doc *directory.Document, cfg radius.Config) string {
	t.Helper()

	tree := directorytest.NewTree(t, doc)
	authn, err := auth.New(auth.DefaultConfig(), auth.Options{AllowPlainTextPasswords: true})
	require.NoError(t, err)

	cfg.BindAddress = "127.0.0.1"
	if cfg.Secret == "" {
		cfg.Secret = secret
	}
	var gate *access.Control
	if len(cfg.Access.Allow) > 0 || len(cfg.Access.Deny) > 0 {
		gate, err = access.New(cfg.Access)
		require.NoError(t, err)
	}

	srv, err := radius.New(cfg, tree, authn, gate, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Error("RADIUS server did not stop")
		}
	})

	addr := srv.Addr()
	require.NotEmpty(t, addr, "server failed to listen")
	return addr
}

func exchange(t *testing.T, addr, username, password string) goradius.Code {
	t.Helper()
	p := goradius.New(goradius.CodeAccessRequest, []byte(secret))
	require.NoError(t, rfc2865.UserName_SetString(p, username))
	require.NoError(t, rfc2865.UserPassword_SetString(p, password))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := goradius.Exchange(ctx, p, addr)
	require.NoError(t, err)
	return resp.Code
}

// ============================================================================
// Access-Request
// ============================================================================

func TestAccessRequest(t *testing.T) {
	addr := startServer(t, directorytest.SimpleDocument(), radius.Config{})

	tests := []struct {
		name     string
		username string
		password string
		want     goradius.Code
	}{
		{"username", "foo", "password", goradius.CodeAccessAccept},
		{"email", "foo@dapper.test", "password", goradius.CodeAccessAccept},
		{"wrong password", "foo", "wrong", goradius.CodeAccessReject},
		{"unknown user", "nobody", "password", goradius.CodeAccessReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exchange(t, addr, tt.username, tt.password))
		})
	}
}

func TestAccessRequestKeys(t *testing.T) {
	addr := startServer(t, directorytest.SimpleDocument(), radius.Config{Keys: []string{"email"}})

	assert.Equal(t, goradius.CodeAccessAccept, exchange(t, addr, "foo@dapper.test", "password"))
	assert.Equal(t, goradius.CodeAccessReject, exchange(t, addr, "foo", "password"))
}

func TestAccessRequestPermission(t *testing.T) {
	doc := directorytest.SimpleDocument()
	no := false
	doc.Users[0].Permissions = &directory.PermissionsRecord{Radius: &no}
	addr := startServer(t, doc, radius.Config{})

	assert.Equal(t, goradius.CodeAccessReject, exchange(t, addr, "foo", "password"))
}

func TestAccessRequestMFA(t *testing.T) {
	addr := startServer(t, directorytest.MFADocument(), radius.Config{MFARequired: true})

	assert.Equal(t, goradius.CodeAccessReject, exchange(t, addr, "bar", "secret"))

	code, err := auth.GenerateTOTPCode(directorytest.MFASecret, time.Now())
	require.NoError(t, err)
	assert.Equal(t, goradius.CodeAccessAccept, exchange(t, addr, "bar", "secret"+code))

	// foo has no MFA enrolled.
	assert.Equal(t, goradius.CodeAccessReject, exchange(t, addr, "foo", "secure"+code))
}

func TestWrongSecret(t *testing.T) {
	addr := startServer(t, directorytest.SimpleDocument(), radius.Config{})

	req := goradius.New(goradius.CodeAccessRequest, []byte("not-the-secret"))
	require.NoError(t, rfc2865.UserName_SetString(req, "foo"))
	require.NoError(t, rfc2865.UserPassword_SetString(req, "password"))
	raw, err := req.Encode()
	require.NoError(t, err)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(raw)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	assert.True(t, goradius.IsAuthenticResponse(buf[:n], raw, []byte(secret)), "reply must be signed with the server secret")
	resp, err := goradius.Parse(buf[:n], []byte(secret))
	require.NoError(t, err)
	assert.Equal(t, goradius.CodeAccessReject, resp.Code)
	assert.Equal(t, req.Identifier, resp.Identifier)
}

// ============================================================================
// Dropped packets
// ============================================================================

// expectSilence sends p and asserts that no reply arrives.
func expectSilence(t *testing.T, addr string, p *goradius.Packet) {
	t.Helper()
	raw, err := p.Encode()
	require.NoError(t, err)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(raw)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	_, err = conn.Read(make([]byte, 4096))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "expected no reply, got %v", err)
}

func TestAccessDenied(t *testing.T) {
	addr := startServer(t, directorytest.SimpleDocument(), radius.Config{
		Access: access.Config{Order: access.OrderAllowDeny, Allow: []string{"10.0.0.0/8"}},
	})

	p := goradius.New(goradius.CodeAccessRequest, []byte(secret))
	require.NoError(t, rfc2865.UserName_SetString(p, "foo"))
	require.NoError(t, rfc2865.UserPassword_SetString(p, "password"))
	expectSilence(t, addr, p)
}

func TestStatusServerDropped(t *testing.T) {
	addr := startServer(t, directorytest.SimpleDocument(), radius.Config{})
	expectSilence(t, addr, goradius.New(goradius.CodeStatusServer, []byte(secret)))
}

// ============================================================================
// Configuration
// ============================================================================

func TestNewValidation(t *testing.T) {
	tree := directorytest.NewTree(t, directorytest.SimpleDocument())
	authn, err := auth.New(auth.DefaultConfig(), auth.Options{})
	require.NoError(t, err)

	_, err = radius.New(radius.Config{}, tree, authn, nil, nil)
	assert.Error(t, err, "missing secret")

	_, err = radius.New(radius.Config{Secret: "s", Keys: []string{"phone"}}, tree, authn, nil, nil)
	assert.Error(t, err, "unknown key")

	_, err = radius.New(radius.Config{Secret: "s"}, nil, authn, nil, nil)
	assert.Error(t, err, "missing tree")

	a, err := radius.New(radius.Config{Secret: "s", Keys: []string{" Email "}}, tree, authn, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "RADIUS", a.Protocol())
}

func TestStopBeforeServe(t *testing.T) {
	tree := directorytest.NewTree(t, directorytest.SimpleDocument())
	authn, err := auth.New(auth.DefaultConfig(), auth.Options{})
	require.NoError(t, err)

	a, err := radius.New(radius.Config{Secret: "s", BindAddress: "127.0.0.1"}, tree, authn, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	assert.NoError(t, a.Stop(ctx), "Stop is idempotent")
}
