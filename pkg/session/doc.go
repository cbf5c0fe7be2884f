// Package session validates server-side session records and enforces the
// per-account concurrent session cap.
//
// # Session records
//
// Records live at session:{ownerId}:{sessionId} and are created by the login
// service. Validator resolves the session id (token claim, then the X-Session-Id
// header, then an unverified decode of the raw token), loads the record and
// rejects it when absent or inactive. On success the record's activity timestamp,
// IP address and user agent are refreshed and its TTL slides forward.
//
// The device fingerprint is a SHA-256 of the user agent only. Client IPs change
// too often on mobile networks to be part of it. A mismatch is logged and recorded
// as a security event but does not invalidate the session.
//
// # Concurrent sessions
//
// Limiter admits a session into user:{ownerId}:sessions with a single atomic
// bounded insert. Sessions already in the set always pass. A new session is
// rejected once the set holds Max entries; nothing is evicted automatically.
//
// Reaper periodically removes set members whose session record has expired so
// dead sessions stop counting against the cap.
package session
