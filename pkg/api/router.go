package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/api/handlers"
	"github.com/marmos91/dapper/pkg/api/middleware"
	"github.com/marmos91/dapper/pkg/api/token"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
	"github.com/marmos91/dapper/pkg/session"
)

// Dependencies are the collaborators the routes are built from. Gate and
// Metrics may be nil.
type Dependencies struct {
	Tree     *directory.Tree
	Authn    auth.Authenticator
	Sessions *session.Store
	Tokens   *token.Service
	Gate     *access.Control
	Metrics  metrics.APIMetrics
}

// NewRouter creates the chi router.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET /metrics (404 while metrics are disabled)
//   - POST /api/session, then GET and DELETE with a session token
func NewRouter(cookie string, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Access runs on the real peer address, before RealIP rewrites it.
	r.Use(middleware.Access(deps.Gate))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Tree)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	sessionHandler := handlers.NewSessionHandler(deps.Tree, deps.Authn, deps.Sessions, deps.Tokens, cookie)
	r.Route("/api/session", func(r chi.Router) {
		r.Post("/", sessionHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(deps.Tokens, deps.Sessions, cookie))
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Delete)
		})
	})

	return r
}

// requestLogger logs request start at DEBUG and completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
