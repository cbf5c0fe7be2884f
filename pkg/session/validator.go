package session

import (
	"context"
	"errors"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Input carries the request data the validator needs
type Input struct {
	Identity *auth.Identity
	// RawToken is the bearer token, used as a last resort to recover the session id
	RawToken string
	// SessionHeader is the X-Session-Id header value
	SessionHeader string
	UserAgent     string
	// DeviceFingerprint is the X-Device-Fingerprint header value. When empty
	// the fingerprint is derived from UserAgent.
	DeviceFingerprint string
	IPAddress         string
}

func (in Input) fingerprint() string {
	if in.DeviceFingerprint != "" {
		return in.DeviceFingerprint
	}
	return Fingerprint(in.UserAgent)
}

// Validator confirms and refreshes the caller's session
type Validator struct {
	repo   *Repository
	events audit.Logger
	logger logrus.FieldLogger
	ttl    time.Duration
	now    func() time.Time
}

// NewValidator creates a session validator. ttl is the sliding expiry applied on refresh.
func NewValidator(repo *Repository, events audit.Logger, ttl time.Duration, logger logrus.FieldLogger) *Validator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if events == nil {
		events = audit.NoOp()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Validator{
		repo:   repo,
		events: events,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// ResolveSessionID picks the session id from the token claim, the header, or the
// raw token payload, in that order
func ResolveSessionID(in Input) string {
	if in.Identity != nil && in.Identity.SessionID != "" {
		return in.Identity.SessionID
	}
	if in.SessionHeader != "" {
		return in.SessionHeader
	}
	if in.RawToken != "" {
		if claims, err := auth.DecodeUnverified(in.RawToken); err == nil {
			return claims.SessionID
		}
	}
	return ""
}

// Validate loads the session for in.Identity, rejects missing or inactive
// sessions, and refreshes the record
func (v *Validator) Validate(ctx context.Context, in Input) (*Record, error) {
	if in.Identity == nil || in.Identity.Subject == "" {
		return nil, auth.NewError(auth.KindSessionInvalid, "no authenticated identity")
	}

	sessionID := ResolveSessionID(in)
	if sessionID == "" {
		return nil, auth.NewError(auth.KindSessionMissing, "session id not found")
	}

	log := v.logger.WithFields(logrus.Fields{
		"subject":    in.Identity.Subject,
		"session_id": sessionID,
	})

	record, err := v.repo.Get(ctx, in.Identity.Subject, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, auth.NewError(auth.KindSessionInvalid, "session not found or expired")
	}
	if err != nil {
		log.WithError(err).Error("session lookup failed")
		return nil, auth.WrapError(auth.KindSessionInvalid, "session could not be verified", err)
	}

	if !record.IsActive {
		return nil, auth.NewError(auth.KindSessionInvalid, "session is no longer active")
	}
	if record.OwnerID != "" && record.OwnerID != in.Identity.Subject {
		return nil, auth.NewError(auth.KindSessionInvalid, "session belongs to another account")
	}

	presented := in.fingerprint()
	if record.DeviceFingerprint != "" && presented != record.DeviceFingerprint {
		log.WithField("ip", in.IPAddress).Warn("device fingerprint mismatch")
		v.recordMismatch(ctx, in, sessionID)
	}

	record.SessionID = sessionID
	record.OwnerID = in.Identity.Subject
	record.LastActivityAt = v.now().UTC()
	record.IPAddress = in.IPAddress
	record.DeviceInfo.UserAgent = in.UserAgent

	if err := v.repo.Save(ctx, record, v.ttl); err != nil {
		log.WithError(err).Warn("failed to refresh session")
	}

	return record, nil
}

func (v *Validator) recordMismatch(ctx context.Context, in Input, sessionID string) {
	event := audit.NewEvent(ctx, audit.EventTypeFingerprintMismatch, "user:"+in.Identity.Subject, audit.LevelMedium, map[string]interface{}{
		"sessionId": sessionID,
		"ipAddress": in.IPAddress,
		"userAgent": in.UserAgent,
	})
	if err := v.events.Record(ctx, event); err != nil {
		v.logger.WithError(err).Warn("failed to record security event")
	}
}
