// Package httputil provides HTTP utilities shared by the gateway and its routes.
//
// # Error responses
//
// Every pipeline rejection is written by WriteAuthError:
//
//	{"error": "account_locked", "message": "...", "remainingMinutes": 25}
//	{"error": "permission_denied", "message": "...", "reason": "ownership mismatch: ..."}
//
// The status code comes from the error kind. Locked accounts also get a
// Retry-After header in seconds. Unclassified errors become a bare 500.
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// RequestIDMiddleware must run first; later middleware read the request id and
// the tagged logger from the context.
package httputil
