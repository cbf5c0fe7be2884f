// Package cli implements gatekeeper-token, the developer tool for minting
// tokens and managing sessions against a local Redis.
//
// # Commands
//
// issue: Mint an HMAC-signed token
//
//	gatekeeper-token issue \
//		--subject u-123 \
//		--role DOCTOR \
//		--session 7f9c... \
//		--clinic c-1
//
// seed-session: Create an active session, admit it against the concurrent
// limit and optionally issue a token bound to it
//
//	gatekeeper-token seed-session \
//		--subject u-123 \
//		--user-agent "curl/8.5.0" \
//		--role DOCTOR --clinic c-1
//
// end-session: Delete a session and release its slot
//
//	gatekeeper-token end-session --subject u-123 --session 7f9c...
//
// sessions: List session ids counted against the limit
//
//	gatekeeper-token sessions --subject u-123
//
// revoke: Revoke a token by jti, or pass the token to use its jti and expiry.
// A token bound to a session also releases that session's slot.
//
//	gatekeeper-token revoke --token eyJhbGciOi...
//
// can-assign: Check the role hierarchy
//
//	gatekeeper-token can-assign --assigner CLINIC_ADMIN --target NURSE
//
// # Environment
//
// GATEKEEPER_JWT_SECRET, GATEKEEPER_JWT_ISSUER, GATEKEEPER_REDIS_URL and
// GATEKEEPER_ROLES_FILE provide flag defaults.
package cli
