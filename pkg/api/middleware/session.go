package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/api/token"
	"github.com/marmos91/dapper/pkg/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(session.Session)
	return sess, ok
}

// WithSession returns ctx carrying sess.
func WithSession(ctx context.Context, sess session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// RequireSession resolves the request token to a live session, touches it
// and stores it in the context. The token is read from, in order, the
// Authorization bearer header, the named cookie and the "id" query
// parameter. Anything else is a 401.
func RequireSession(tokens *token.Service, sessions *session.Store, cookie string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := extractToken(r, cookie)
			if raw == "" {
				unauthorized(w)
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				logger.DebugCtx(r.Context(), "Session token rejected", "source", source, logger.Err(err))
				unauthorized(w)
				return
			}

			sess, ok := sessions.Touch(claims.SessionID)
			if !ok {
				logger.DebugCtx(r.Context(), "Session not found", "source", source, logger.KeySessionID, claims.SessionID)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"status":"error","error":"Invalid session"}` + "\n"))
}

// extractToken returns the token and where it was found.
func extractToken(r *http.Request, cookie string) (string, string) {
	if tok, ok := extractBearerToken(r); ok {
		return tok, "bearer"
	}
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	if id := r.URL.Query().Get("id"); id != "" {
		return id, "query"
	}
	return "", "none"
}

// extractBearerToken extracts the token from a Bearer Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}
