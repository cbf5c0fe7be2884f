package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/carepoint/gatekeeper/pkg/contextkeys"
)

// DeviceInfo describes the client device of a session
type DeviceInfo struct {
	UserAgent string `json:"userAgent"`
}

// Record is a server-side session
type Record struct {
	SessionID         string     `json:"sessionId"`
	OwnerID           string     `json:"ownerId"`
	IsActive          bool       `json:"isActive"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastActivityAt    time.Time  `json:"lastActivityAt"`
	DeviceFingerprint string     `json:"deviceFingerprint"`
	DeviceInfo        DeviceInfo `json:"deviceInfo"`
	IPAddress         string     `json:"ipAddress"`
}

// Fingerprint derives the device fingerprint from a user agent
func Fingerprint(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}

// WithRecord stores the validated session in the context
func WithRecord(ctx context.Context, record *Record) context.Context {
	return contextkeys.WithSession(ctx, record)
}

// FromContext retrieves the validated session
func FromContext(ctx context.Context) (*Record, bool) {
	record, ok := ctx.Value(contextkeys.SessionKey).(*Record)
	return record, ok && record != nil
}
