package session

import (
	"context"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DefaultMaxSessions is the concurrent session cap per account
const DefaultMaxSessions = 5

// Limiter enforces the concurrent session cap
type Limiter struct {
	store  storage.Store
	events audit.Logger
	logger logrus.FieldLogger
	max    int64
	setTTL time.Duration
}

// NewLimiter creates a limiter. A zero setTTL leaves the session set without expiry.
func NewLimiter(store storage.Store, events audit.Logger, max int64, setTTL time.Duration, logger logrus.FieldLogger) *Limiter {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	if events == nil {
		events = audit.NoOp()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Limiter{
		store:  store,
		events: events,
		logger: logger,
		max:    max,
		setTTL: setTTL,
	}
}

// Max returns the configured cap
func (l *Limiter) Max() int64 {
	return l.max
}

// Admit accepts sessionID for ownerID if it is already tracked or the cap has
// room. A store failure fails closed with ServiceUnavailable.
func (l *Limiter) Admit(ctx context.Context, ownerID, sessionID string) error {
	res, err := l.store.SetAddBounded(ctx, storage.UserSessionsKey(ownerID), sessionID, l.max, l.setTTL)
	if err != nil {
		l.logger.WithError(err).WithField("subject", ownerID).Error("session limit check failed")
		return auth.WrapError(auth.KindServiceUnavailable, "session service unavailable", err)
	}
	if res.Accepted() {
		return nil
	}

	l.logger.WithFields(logrus.Fields{
		"subject":    ownerID,
		"session_id": sessionID,
		"active":     res.Size,
	}).Warn("concurrent session limit reached")

	event := audit.NewEvent(ctx, audit.EventTypeTooManySessions, "user:"+ownerID, audit.LevelHigh, map[string]interface{}{
		"sessionId":      sessionID,
		"activeSessions": res.Size,
		"maxSessions":    l.max,
	})
	if err := l.events.Record(ctx, event); err != nil {
		l.logger.WithError(err).Warn("failed to record security event")
	}

	return auth.NewError(auth.KindTooManySessions,
		fmt.Sprintf("maximum of %d concurrent sessions reached, end another session first", l.max))
}

// Release removes sessionID from the owner's active set
func (l *Limiter) Release(ctx context.Context, ownerID, sessionID string) error {
	return l.store.SetRemove(ctx, storage.UserSessionsKey(ownerID), sessionID)
}

// Active lists the owner's tracked session ids
func (l *Limiter) Active(ctx context.Context, ownerID string) ([]string, error) {
	return l.store.SetMembers(ctx, storage.UserSessionsKey(ownerID))
}
