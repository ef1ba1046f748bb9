// Package middleware provides the HTTP middleware of the dapper API.
package middleware

import (
	"net/http"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/access"
)

// Access rejects requests whose peer address fails the access policy. It
// must run before anything rewrites RemoteAddr from forwarding headers.
// A nil gate allows everything.
func Access(gate *access.Control) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if gate == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.CheckString(r.RemoteAddr) {
				logger.Debug("API request denied by access policy", logger.KeyClientAddr, r.RemoteAddr)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
