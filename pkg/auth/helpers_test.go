package auth

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/directory/directorytest"
)

// testParams keeps argon2id cheap in tests.
var testParams = Argon2Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func fastHash(password string) (string, error) {
	return HashPasswordWithParams(password, testParams)
}

func mfaTree(t *testing.T) *directory.Tree {
	t.Helper()
	return directorytest.NewTree(t, directorytest.HashPasswords(t, directorytest.MFADocument(), fastHash))
}

func mustUser(t *testing.T, tree *directory.Tree, username string) *directory.User {
	t.Helper()
	u, ok := tree.User(username)
	require.True(t, ok, "user %s", username)
	return u
}

// upstream is an in-process RADIUS server.
type upstream struct {
	addr  string
	calls atomic.Int32
}

func startUpstream(t *testing.T, secret string, accept func(username, password string) bool) *upstream {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	up := &upstream{addr: pc.LocalAddr().String()}
	srv := &radius.PacketServer{
		SecretSource: radius.StaticSecretSource([]byte(secret)),
		Handler: radius.HandlerFunc(func(w radius.ResponseWriter, r *radius.Request) {
			up.calls.Add(1)
			code := radius.CodeAccessReject
			if accept(rfc2865.UserName_GetString(r.Packet), rfc2865.UserPassword_GetString(r.Packet)) {
				code = radius.CodeAccessAccept
			}
			_ = w.Write(r.Response(code))
		}),
	}
	go func() { _ = srv.Serve(pc) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return up
}

func acceptOnly(username, password string) func(string, string) bool {
	return func(u, p string) bool { return u == username && p == password }
}

type recordingWriter struct {
	calls atomic.Int32
	err   error
	last  atomic.Value // string
}

func (w *recordingWriter) WritePassword(_ context.Context, userID, hash string) error {
	w.calls.Add(1)
	w.last.Store(userID + ":" + hash)
	return w.err
}
