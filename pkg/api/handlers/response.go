package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope for health and error responses.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; an encoding error cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

func errorResponse(errMsg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, errorResponse(msg))
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusUnauthorized, errorResponse(msg))
}

// Forbidden writes a 403 error response.
func Forbidden(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusForbidden, errorResponse(msg))
}

// InternalServerError writes a 500 error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusInternalServerError, errorResponse(msg))
}

// decodeJSONBody decodes the request body into v. On failure it writes a 400
// and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}
