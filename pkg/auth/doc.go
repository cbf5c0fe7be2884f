// Package auth verifies bearer credentials and defines the classified failures
// raised by every stage of the authorization pipeline.
//
// # Verification
//
// A Verifier holds an ordered list of Strategy implementations. Each strategy either
// returns verified Claims or a *VerificationError carrying a typed FailureReason. The
// verifier tries strategies in order and, when all fail, classifies the outcome from the
// last strategy that actually attempted the token:
//
//	ReasonExpired                        -> KindTokenExpired
//	ReasonMalformed, ReasonBadSignature,
//	ReasonInvalidClaims                  -> KindInvalidToken
//
// A strategy that does not handle the token's signing algorithm reports
// ReasonNotApplicable and is skipped for classification purposes.
//
// Two strategies ship with the package:
//
//   - HMACStrategy: shared-secret HS256/384/512 tokens issued by the login service
//   - OIDCStrategy: asymmetric tokens from an OpenID Connect provider, verified with
//     go-oidc against a static or remote JWKS key set
//
// After a strategy succeeds the token id (jti) is checked against the revocation list.
// A listed jti fails with KindTokenRevoked. A revocation lookup failure is logged and
// verification proceeds.
//
// # Errors
//
// Error carries a Kind that maps to an HTTP status:
//
//	KindInvalidToken, KindTokenExpired, KindTokenRevoked,
//	KindSessionMissing, KindSessionInvalid          401
//	KindAccountLocked, KindTooManySessions          429
//	KindTenantRequired                              400
//	KindTenantAccessDenied, KindRoleNotAllowed,
//	KindPermissionDenied, KindOriginDenied          403
//	KindServiceUnavailable                          503
package auth
