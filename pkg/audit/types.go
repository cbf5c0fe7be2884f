package audit

import (
	"context"
	"time"

	"github.com/carepoint/gatekeeper/pkg/contextkeys"
	"github.com/google/uuid"
)

// EventType represents the category of security event
type EventType string

const (
	// Authentication events
	EventTypeAuthFailed     EventType = "auth.failed"
	EventTypeLockoutCreated EventType = "auth.lockout_created"
	EventTypeLockedAttempt  EventType = "auth.locked_attempt"
	EventTypeTokenRevoked   EventType = "auth.token_revoked"

	// Session events
	EventTypeTooManySessions     EventType = "session.limit_exceeded"
	EventTypeFingerprintMismatch EventType = "session.fingerprint_mismatch"
	EventTypeSessionInvalid      EventType = "session.invalid"

	// Tenant events
	EventTypeTenantDenied EventType = "tenant.access_denied"

	// Authorization events
	EventTypeRoleDenied         EventType = "authz.role_denied"
	EventTypePermissionDecision EventType = "authz.permission_decision"

	// Network events
	EventTypeOriginDenied EventType = "network.origin_denied"
)

// Level is the audit severity of an event or decision
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank orders levels from low (0) to critical (3). Unknown levels rank as low.
func (l Level) Rank() int {
	switch l {
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// SecurityEvent is an append-only audit record
type SecurityEvent struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"eventType"`
	Identifier string                 `json:"identifier"`
	Level      Level                  `json:"level"`
	RequestID  string                 `json:"requestId,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// NewEvent builds an event stamped with the current time and the request id from ctx
func NewEvent(ctx context.Context, eventType EventType, identifier string, level Level, details map[string]interface{}) *SecurityEvent {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &SecurityEvent{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		Identifier: identifier,
		Level:      level,
		RequestID:  contextkeys.GetRequestID(ctx),
		Details:    details,
	}
}
