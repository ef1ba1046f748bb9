package handlers

import (
	"net/http"

	"github.com/marmos91/dapper/pkg/directory"
)

// HealthHandler serves the unauthenticated health endpoints.
type HealthHandler struct {
	tree *directory.Tree
}

// NewHealthHandler creates a health handler. tree may be nil, in which case
// readiness reports unhealthy.
func NewHealthHandler(tree *directory.Tree) *HealthHandler {
	return &HealthHandler{tree: tree}
}

// Liveness handles GET /health. It succeeds while the process is serving
// HTTP at all.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dapper",
	}))
}

// Readiness handles GET /health/ready. The directory must be loaded.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.tree == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("directory not loaded"))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]int{
		"domains":       len(h.tree.Domains()),
		"organizations": len(h.tree.Organizations()),
		"users":         len(h.tree.Users()),
		"entries":       len(h.tree.Entries()),
	}))
}
