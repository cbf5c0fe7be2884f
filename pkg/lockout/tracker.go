package lockout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Config controls thresholds and escalation
type Config struct {
	// Threshold is the failure count that triggers the first lockout
	Threshold int64
	// AttemptWindow is the counter lifetime when no lockout is triggered
	AttemptWindow time.Duration
	// Escalation lists lockout durations in ascending order
	Escalation []time.Duration
}

// DefaultConfig returns the production escalation policy
func DefaultConfig() Config {
	return Config{
		Threshold:     10,
		AttemptWindow: 15 * time.Minute,
		Escalation: []time.Duration{
			10 * time.Minute,
			25 * time.Minute,
			45 * time.Minute,
			60 * time.Minute,
			360 * time.Minute,
		},
	}
}

// Validate checks the config
func (c Config) Validate() error {
	if c.Threshold < 1 {
		return errors.New("lockout threshold must be positive")
	}
	if c.AttemptWindow <= 0 {
		return errors.New("attempt window must be positive")
	}
	if len(c.Escalation) == 0 {
		return errors.New("escalation table must not be empty")
	}
	for i, d := range c.Escalation {
		if d <= 0 {
			return fmt.Errorf("escalation entry %d must be positive", i)
		}
		if i > 0 && d < c.Escalation[i-1] {
			return fmt.Errorf("escalation entry %d is shorter than entry %d", i, i-1)
		}
	}
	return nil
}

// State is the persisted lockout record
type State struct {
	Identity       string    `json:"identity"`
	LockedUntil    time.Time `json:"lockedUntil"`
	Attempts       int64     `json:"attempts"`
	LockoutMinutes int       `json:"lockoutMinutes"`
}

// IPIdentity is the tracker identity for a client address
func IPIdentity(ip string) string {
	return "ip:" + ip
}

// AccountIdentity is the tracker identity for an account
func AccountIdentity(subject string) string {
	return "user:" + subject
}

// Tracker implements the attempt counter and lockout state machine
type Tracker struct {
	store  storage.Store
	events audit.Logger
	config Config
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewTracker creates a tracker. events may be nil.
func NewTracker(store storage.Store, events audit.Logger, config Config, logger logrus.FieldLogger) *Tracker {
	if events == nil {
		events = audit.NoOp()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		store:  store,
		events: events,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check fails with AccountLocked while a lockout is active for identity.
// A store failure is logged and treated as not locked.
func (t *Tracker) Check(ctx context.Context, identity string) error {
	raw, err := t.store.Get(ctx, storage.LockoutKey(identity))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.logger.WithError(err).WithField("identity", identity).Error("lockout lookup failed, allowing attempt")
		return nil
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.logger.WithError(err).WithField("identity", identity).Warn("corrupt lockout record ignored")
		return nil
	}

	remaining := state.LockedUntil.Sub(t.now())
	if remaining <= 0 {
		return nil
	}
	return auth.Locked(int(math.Ceil(remaining.Minutes())))
}

// RecordFailure counts a failed authentication and creates a lockout once the
// threshold is reached. It returns the new lockout state, or nil if none was created.
func (t *Tracker) RecordFailure(ctx context.Context, identity, reason string) (*State, error) {
	attempts, err := t.store.IncrWithWindow(ctx, storage.AttemptsKey(identity), t.config.AttemptWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	t.emit(ctx, audit.EventTypeAuthFailed, identity, audit.LevelMedium, map[string]interface{}{
		"attempts": attempts,
		"reason":   reason,
	})

	if attempts < t.config.Threshold {
		return nil, nil
	}

	duration := t.LockoutDuration(attempts)
	state := &State{
		Identity:       identity,
		LockedUntil:    t.now().Add(duration).UTC(),
		Attempts:       attempts,
		LockoutMinutes: int(duration / time.Minute),
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lockout: %w", err)
	}
	if err := t.store.Set(ctx, storage.LockoutKey(identity), string(data), duration); err != nil {
		return nil, fmt.Errorf("failed to write lockout: %w", err)
	}
	if err := t.store.Expire(ctx, storage.AttemptsKey(identity), duration+t.config.AttemptWindow); err != nil {
		t.logger.WithError(err).WithField("identity", identity).Warn("failed to extend attempt counter")
	}

	t.logger.WithFields(logrus.Fields{
		"identity":        identity,
		"attempts":        attempts,
		"lockout_minutes": state.LockoutMinutes,
	}).Warn("identity locked out")
	t.emit(ctx, audit.EventTypeLockoutCreated, identity, audit.LevelHigh, map[string]interface{}{
		"attempts":       attempts,
		"lockoutMinutes": state.LockoutMinutes,
		"lockedUntil":    state.LockedUntil,
	})

	return state, nil
}

// LockoutDuration returns the lockout length for a failure count at or above the threshold
func (t *Tracker) LockoutDuration(attempts int64) time.Duration {
	idx := attempts - t.config.Threshold
	if idx < 0 {
		idx = 0
	}
	if last := int64(len(t.config.Escalation) - 1); idx > last {
		idx = last
	}
	return t.config.Escalation[idx]
}

// Clear removes the attempt counter and any lockout for identity. The deletes are
// independent; a partial failure leaves state that expires on its own.
func (t *Tracker) Clear(ctx context.Context, identity string) error {
	errAttempts := t.store.Del(ctx, storage.AttemptsKey(identity))
	errLockout := t.store.Del(ctx, storage.LockoutKey(identity))
	return errors.Join(errAttempts, errLockout)
}

func (t *Tracker) emit(ctx context.Context, eventType audit.EventType, identity string, level audit.Level, details map[string]interface{}) {
	if err := t.events.Record(ctx, audit.NewEvent(ctx, eventType, identity, level, details)); err != nil {
		t.logger.WithError(err).WithField("event_type", eventType).Warn("failed to record security event")
	}
}
