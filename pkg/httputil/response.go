package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carepoint/gatekeeper/pkg/auth"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// AuthErrorResponse is the body of every rejected request
type AuthErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message,omitempty"`
	RemainingMinutes int    `json:"remainingMinutes,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, AuthErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// WriteAuthError writes a classified pipeline failure. Errors that carry no
// classification are reported as 500 without leaking their text.
func WriteAuthError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		WriteInternalError(w)
		return
	}

	if authErr.Kind == auth.KindAccountLocked && authErr.RemainingMinutes > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(authErr.RemainingMinutes*60))
	}
	if authErr.Kind == auth.KindInvalidToken || authErr.Kind == auth.KindTokenExpired || authErr.Kind == auth.KindTokenRevoked {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	WriteJSON(w, authErr.StatusCode(), AuthErrorResponse{
		Error:            string(authErr.Kind),
		Message:          authErr.Message,
		RemainingMinutes: authErr.RemainingMinutes,
		Reason:           authErr.Reason,
	})
}

// WriteInternalError writes an internal server error response (500 Internal Server Error)
func WriteInternalError(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, AuthErrorResponse{
		Error:   "internal_error",
		Message: "internal server error",
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}
