package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/api/middleware"
	"github.com/marmos91/dapper/pkg/api/token"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/session"
)

const protocolName = "api"

// SessionHandler serves /api/session.
type SessionHandler struct {
	tree     *directory.Tree
	authn    auth.Authenticator
	sessions *session.Store
	tokens   *token.Service
	cookie   string
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(tree *directory.Tree, authn auth.Authenticator, sessions *session.Store, tokens *token.Service, cookie string) *SessionHandler {
	return &SessionHandler{
		tree:     tree,
		authn:    authn,
		sessions: sessions,
		tokens:   tokens,
		cookie:   cookie,
	}
}

// LoginRequest is the body of POST /api/session. A username containing "@"
// is looked up by email.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is a session with its user expanded.
type SessionResponse struct {
	ID        string       `json:"id"`
	User      UserResponse `json:"user"`
	Created   time.Time    `json:"created"`
	Timestamp time.Time    `json:"timestamp"`
	Token     string       `json:"token,omitempty"`
}

// UserResponse is a user without its password hash or MFA secret.
type UserResponse struct {
	ID            string                      `json:"id"`
	Username      string                      `json:"username"`
	Name          string                      `json:"name"`
	Email         string                      `json:"email"`
	DN            string                      `json:"dn,omitempty"`
	Organizations []string                    `json:"organizations"`
	Groups        []string                    `json:"groups"`
	Permissions   directory.Permissions       `json:"permissions"`
	Attributes    directory.AccountAttributes `json:"attributes"`
	Metadata      directory.Metadata          `json:"metadata,omitempty"`
}

func (h *SessionHandler) userResponse(u *directory.User) UserResponse {
	resp := UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Name:          u.Name,
		Email:         u.Email,
		Organizations: u.Organizations,
		Groups:        u.Groups,
		Permissions:   u.Permissions,
		Attributes:    u.Attributes,
		Metadata:      u.Metadata,
	}
	if p, ok := h.tree.Projection(u.ID); ok {
		resp.DN = p.DN
	}
	return resp
}

func (h *SessionHandler) lookup(username string) (*directory.User, bool) {
	if strings.Contains(username, "@") {
		return h.tree.UserByEmail(username)
	}
	return h.tree.User(username)
}

// Login handles POST /api/session.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		Unauthorized(w, "Invalid username or password")
		return
	}

	ctx := r.Context()
	user, ok := h.lookup(req.Username)
	if !ok || user.Deleted {
		logger.DebugCtx(ctx, "Session login for unknown user", logger.KeyUsername, req.Username)
		Unauthorized(w, "Invalid username or password")
		return
	}
	if !user.Permissions.Session {
		Forbidden(w, "Session based login forbidden")
		return
	}

	_, err := h.authn.Authenticate(ctx, &auth.Request{
		User:        user,
		Password:    req.Password,
		MFARequired: h.sessions.Config().MFARequired,
		Protocol:    protocolName,
		ClientIP:    clientIP(r),
	})
	if err != nil {
		Unauthorized(w, "Invalid username or password")
		return
	}

	sess := h.sessions.Create(user.ID)
	tok, err := h.tokens.Issue(sess)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to issue session token", logger.Err(err))
		InternalServerError(w, "Failed to create session")
		return
	}

	logger.InfoCtx(ctx, "Session created",
		logger.KeyUsername, user.Username,
		logger.KeySessionID, sess.ID)

	h.setCookie(w, tok)
	WriteJSON(w, http.StatusOK, SessionResponse{
		ID:        sess.ID,
		User:      h.userResponse(user),
		Created:   sess.Created,
		Timestamp: sess.Timestamp,
		Token:     tok,
	})
}

// Get handles GET /api/session. It requires middleware.RequireSession.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		Unauthorized(w, "Invalid session")
		return
	}
	user, ok := h.tree.UserByID(sess.User)
	if !ok || user.Deleted {
		h.sessions.Clear(sess.ID)
		Unauthorized(w, "Invalid session")
		return
	}

	WriteJSON(w, http.StatusOK, SessionResponse{
		ID:        sess.ID,
		User:      h.userResponse(user),
		Created:   sess.Created,
		Timestamp: sess.Timestamp,
	})
}

// Delete handles DELETE /api/session. It requires middleware.RequireSession.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		Unauthorized(w, "Invalid session")
		return
	}
	h.sessions.Clear(sess.ID)
	logger.InfoCtx(r.Context(), "Session revoked", logger.KeySessionID, sess.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) setCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.sessions.Config().TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
