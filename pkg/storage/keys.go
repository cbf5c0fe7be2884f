package storage

import "fmt"

// SessionKey is the key of a single session record.
func SessionKey(ownerID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", ownerID, sessionID)
}

// AttemptsKey is the failed-attempt counter for a client identity.
func AttemptsKey(identity string) string {
	return "auth:attempts:" + identity
}

// LockoutKey holds the active lockout state for a client identity.
func LockoutKey(identity string) string {
	return "auth:lockout:" + identity
}

// BlacklistKey marks a revoked token id.
func BlacklistKey(jti string) string {
	return "jwt:blacklist:" + jti
}

// UserSessionsKey is the set of active session ids owned by a user.
func UserSessionsKey(ownerID string) string {
	return fmt.Sprintf("user:%s:sessions", ownerID)
}

// UserSessionsPattern matches every per-user session set.
const UserSessionsPattern = "user:*:sessions"

// OwnerFromUserSessionsKey extracts the owner id from a user session-set key.
func OwnerFromUserSessionsKey(key string) (string, bool) {
	const prefix, suffix = "user:", ":sessions"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-len(suffix):] != suffix {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}

// SecurityEventsKey is the bounded security event list for an identity.
func SecurityEventsKey(identity string) string {
	return "security:events:" + identity
}
