package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/api"
	"github.com/marmos91/dapper/pkg/api/token"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/directory/directorytest"
	"github.com/marmos91/dapper/pkg/session"
)

const cookieName = "dapper-test"

type fixture struct {
	handler  http.Handler
	sessions *session.Store
	tree     *directory.Tree
}

func newFixture(t *testing.T, doc *directory.Document, sessCfg session.Config, gate *access.Control) *fixture {
	t.Helper()
	tree := directorytest.NewTree(t, doc)
	authn, err := auth.New(auth.DefaultConfig(), auth.Options{AllowPlainTextPasswords: true})
	require.NoError(t, err)
	tokens, err := token.NewService("")
	require.NoError(t, err)
	sessions := session.New(sessCfg, nil)

	return &fixture{
		handler: api.NewRouter(cookieName, api.Dependencies{
			Tree:     tree,
			Authn:    authn,
			Sessions: sessions,
			Tokens:   tokens,
			Gate:     gate,
		}),
		sessions: sessions,
		tree:     tree,
	}
}

func (f *fixture) do(t *testing.T, method, target string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "10.1.2.3:40000"
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/session", map[string]string{"username": username, "password": password})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func sessionDocument() *directory.Document {
	doc := directorytest.SimpleDocument()
	noSession := false
	doc.Users = append(doc.Users, directory.UserRecord{
		Username:      "kiosk",
		Password:      "password",
		Name:          "Kiosk",
		Email:         "kiosk@dapper.test",
		Organizations: []string{"QA"},
		Permissions:   &directory.PermissionsRecord{Session: &noSession},
	})
	return doc
}

// ============================================================================
// Health
// ============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, directorytest.SimpleDocument(), session.Config{}, nil)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "dapper", resp["data"].(map[string]any)["service"])

	w = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["users"])
	assert.EqualValues(t, 3, data["organizations"])
}

func TestMetricsDisabled(t *testing.T) {
	f := newFixture(t, directorytest.SimpleDocument(), session.Config{}, nil)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", nil).Code)
}

// ============================================================================
// Login
// ============================================================================

func TestLogin(t *testing.T) {
	f := newFixture(t, sessionDocument(), session.Config{Shared: true}, nil)

	t.Run("ByUsername", func(t *testing.T) {
		w := f.login(t, "foo", "password")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode(t, w)
		assert.NotEmpty(t, resp["id"])
		assert.NotEmpty(t, resp["token"])
		assert.NotEmpty(t, resp["created"])

		user := resp["user"].(map[string]any)
		assert.Equal(t, "foo", user["username"])
		assert.Equal(t, "Fooey", user["name"])
		assert.NotEmpty(t, user["dn"])
		assert.NotContains(t, user, "password")
		assert.NotContains(t, user, "mfa")

		var cookie *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == cookieName {
				cookie = c
			}
		}
		require.NotNil(t, cookie)
		assert.Equal(t, resp["token"], cookie.Value)
		assert.True(t, cookie.HttpOnly)
	})

	t.Run("ByEmailSharesSession", func(t *testing.T) {
		first := decode(t, f.login(t, "foo", "password"))
		w := f.login(t, "foo@dapper.test", "password")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, first["id"], decode(t, w)["id"])
	})

	t.Run("WrongPassword", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.login(t, "foo", "nope").Code)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.login(t, "nobody", "password").Code)
		assert.Equal(t, http.StatusUnauthorized, f.login(t, "nobody@dapper.test", "password").Code)
	})

	t.Run("MissingFields", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.login(t, "foo", "").Code)
	})

	t.Run("BadBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("SessionPermission", func(t *testing.T) {
		w := f.login(t, "kiosk", "password")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Session based login forbidden", decode(t, w)["error"])
	})
}

func TestLoginMFA(t *testing.T) {
	f := newFixture(t, directorytest.MFADocument(), session.Config{MFARequired: true}, nil)

	assert.Equal(t, http.StatusUnauthorized, f.login(t, "bar", "secret").Code)

	code, err := auth.GenerateTOTPCode(directorytest.MFASecret, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.login(t, "bar", "secret"+code).Code)

	// foo has no MFA enrolled, so a required token can never succeed.
	assert.Equal(t, http.StatusUnauthorized, f.login(t, "foo", "secure"+code).Code)
}

// ============================================================================
// Validate / revoke
// ============================================================================

func TestGetSession(t *testing.T) {
	f := newFixture(t, directorytest.SimpleDocument(), session.Config{Shared: true}, nil)
	login := decode(t, f.login(t, "foo", "password"))
	tok := login["token"].(string)

	sources := map[string]func(*http.Request){
		"Bearer": bearer(tok),
		"Cookie": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: cookieName, Value: tok}) },
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/session", nil, src)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decode(t, w)
			assert.Equal(t, login["id"], resp["id"])
			assert.Equal(t, "foo", resp["user"].(map[string]any)["username"])
			assert.NotContains(t, resp, "token")
		})
	}

	t.Run("Query", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/session?id="+tok, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/session", nil).Code)
	})

	t.Run("Forged", func(t *testing.T) {
		other, err := token.NewService("")
		require.NoError(t, err)
		forged, err := other.Issue(session.Session{ID: login["id"].(string), User: "x"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/session", nil, bearer(forged)).Code)
	})
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, directorytest.SimpleDocument(), session.Config{}, nil)
	tok := decode(t, f.login(t, "foo", "password"))["token"].(string)
	require.Equal(t, 1, f.sessions.Len())

	w := f.do(t, http.MethodDelete, "/api/session", nil, bearer(tok))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, f.sessions.Len())

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/session", nil, bearer(tok)).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodDelete, "/api/session", nil, bearer(tok)).Code)
}

// ============================================================================
// Access control
// ============================================================================

func TestAccessDenied(t *testing.T) {
	gate, err := access.New(access.Config{Order: access.OrderAllowDeny, Allow: []string{"0.0.0.0/0"}, Deny: []string{"10.0.0.0/8"}})
	require.NoError(t, err)
	f := newFixture(t, directorytest.SimpleDocument(), session.Config{}, gate)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/health", nil).Code)
	w := f.do(t, http.MethodGet, "/health", nil, func(r *http.Request) { r.RemoteAddr = "192.168.1.5:5000" })
	assert.Equal(t, http.StatusOK, w.Code)

	// Forwarding headers do not bypass the policy.
	w = f.do(t, http.MethodGet, "/health", nil, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "192.168.1.5") })
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ============================================================================
// Server lifecycle
// ============================================================================

func TestServer(t *testing.T) {
	tree := directorytest.NewTree(t, directorytest.SimpleDocument())
	authn, err := auth.New(auth.DefaultConfig(), auth.Options{AllowPlainTextPasswords: true})
	require.NoError(t, err)
	tokens, err := token.NewService("")
	require.NoError(t, err)

	srv, err := api.NewServer(api.Config{BindAddress: "127.0.0.1"}, api.Dependencies{
		Tree: tree, Authn: authn, Sessions: session.New(session.Config{}, nil), Tokens: tokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "API", srv.Protocol())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	require.NoError(t, srv.Stop(context.Background()))
}

func TestNewServerValidation(t *testing.T) {
	_, err := api.NewServer(api.Config{}, api.Dependencies{})
	assert.Error(t, err)

	_, err = api.NewServer(api.Config{Port: 70000}, api.Dependencies{})
	assert.Error(t, err)
}
