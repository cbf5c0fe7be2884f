// Package contextkeys provides centralized context key definitions
//
// All context keys used by the authorization pipeline are defined here. Values are
// stored untyped; each owning package exposes a typed accessor (auth.IdentityFromContext,
// session.FromContext, clinics.FromContext, rbac.DecisionFromContext).
//
// USAGE PATTERN:
//
//	import "github.com/carepoint/gatekeeper/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := auth.IdentityFromContext(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Pipeline after token verification
	// Required by: session validation, tenant resolution, role gate, permission evaluator
	IdentityKey Key = "identity"

	// ClaimsKey contains *auth.Claims, the verified token payload
	// Set by: middleware.Pipeline after token verification
	// Used by: session id and tenant id resolution
	ClaimsKey Key = "claims"

	// SessionKey contains *session.Record after validation and refresh
	// Set by: middleware.Pipeline
	SessionKey Key = "session"

	// ClinicKey contains *clinics.ClinicContext
	// Set by: clinics.Resolver via middleware.Pipeline
	// Required by: permission evaluator and clinic scoped handlers
	ClinicKey Key = "clinic"

	// DecisionKey contains *rbac.Decision for the route permission
	// Set by: middleware.Pipeline
	// Used by: handlers that surface approval or after-hours conditions
	DecisionKey Key = "permission_decision"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, security events, tracing
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry scoped to the request
	// Set by: httputil.RequestIDMiddleware
	LoggerKey Key = "logger"
)

// WithIdentity adds the authenticated identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithSession adds the validated session record to the context
func WithSession(ctx context.Context, record interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, record)
}

// WithClinic adds the resolved clinic context to the context
func WithClinic(ctx context.Context, clinic interface{}) context.Context {
	return context.WithValue(ctx, ClinicKey, clinic)
}

// WithDecision adds the permission decision to the context
func WithDecision(ctx context.Context, decision interface{}) context.Context {
	return context.WithValue(ctx, DecisionKey, decision)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
