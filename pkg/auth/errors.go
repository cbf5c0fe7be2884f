package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure. The value doubles as the wire error code.
type Kind string

const (
	KindInvalidToken       Kind = "invalid_token"
	KindTokenExpired       Kind = "token_expired"
	KindTokenRevoked       Kind = "token_revoked"
	KindSessionMissing     Kind = "session_missing"
	KindSessionInvalid     Kind = "session_invalid"
	KindAccountLocked      Kind = "account_locked"
	KindTooManySessions    Kind = "too_many_sessions"
	KindTenantRequired     Kind = "tenant_required"
	KindTenantAccessDenied Kind = "tenant_access_denied"
	KindRoleNotAllowed     Kind = "role_not_allowed"
	KindPermissionDenied   Kind = "permission_denied"
	KindOriginDenied       Kind = "origin_denied"
	KindServiceUnavailable Kind = "service_unavailable"
)

// StatusCode returns the HTTP status for the kind
func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidToken, KindTokenExpired, KindTokenRevoked, KindSessionMissing, KindSessionInvalid:
		return http.StatusUnauthorized
	case KindAccountLocked, KindTooManySessions:
		return http.StatusTooManyRequests
	case KindTenantRequired:
		return http.StatusBadRequest
	case KindTenantAccessDenied, KindRoleNotAllowed, KindPermissionDenied, KindOriginDenied:
		return http.StatusForbidden
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure
type Error struct {
	Kind    Kind
	Message string

	// RemainingMinutes is set for KindAccountLocked
	RemainingMinutes int
	// Reason is set for KindPermissionDenied
	Reason string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// NewError creates a classified error
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a classified error with an underlying cause
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Locked creates an AccountLocked error
func Locked(remainingMinutes int) *Error {
	return &Error{
		Kind:             KindAccountLocked,
		Message:          fmt.Sprintf("account temporarily locked, try again in %d minutes", remainingMinutes),
		RemainingMinutes: remainingMinutes,
	}
}

// PermissionDenied creates a PermissionDenied error carrying the evaluator reason
func PermissionDenied(reason string) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Message: "insufficient permissions",
		Reason:  reason,
	}
}

// AsError extracts a classified error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a classified error of the given kind
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
