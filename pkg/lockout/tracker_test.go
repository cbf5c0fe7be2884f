package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/auth"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	mu     sync.Mutex
	events []*audit.SecurityEvent
}

func (c *captureLogger) Record(ctx context.Context, event *audit.SecurityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureLogger) Close() error { return nil }

func (c *captureLogger) ofType(eventType audit.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setupTracker(t *testing.T) (*Tracker, *miniredis.Miniredis, *captureLogger, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(storage.Config{RedisURL: "redis://" + mr.Addr(), OpTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	events := &captureLogger{}
	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	tracker := NewTracker(store, events, DefaultConfig(), nil)
	tracker.now = clock.Now
	return tracker, mr, events, clock
}

func fail(t *testing.T, tracker *Tracker, identity string, n int) *State {
	t.Helper()
	var last *State
	for i := 0; i < n; i++ {
		state, err := tracker.RecordFailure(context.Background(), identity, "invalid_token")
		require.NoError(t, err)
		last = state
	}
	return last
}

func TestTracker_BelowThreshold(t *testing.T) {
	tracker, mr, events, _ := setupTracker(t)
	id := IPIdentity("10.0.0.1")

	state := fail(t, tracker, id, 9)
	assert.Nil(t, state)
	assert.NoError(t, tracker.Check(context.Background(), id))
	assert.Equal(t, 15*time.Minute, mr.TTL(storage.AttemptsKey(id)))
	assert.Equal(t, 9, events.ofType(audit.EventTypeAuthFailed))
	assert.Equal(t, 0, events.ofType(audit.EventTypeLockoutCreated))
}

func TestTracker_LocksAtThreshold(t *testing.T) {
	tracker, mr, events, _ := setupTracker(t)
	id := IPIdentity("10.0.0.1")

	state := fail(t, tracker, id, 10)
	require.NotNil(t, state)
	assert.Equal(t, 10, state.LockoutMinutes)
	assert.Equal(t, int64(10), state.Attempts)
	assert.Equal(t, 10*time.Minute, mr.TTL(storage.LockoutKey(id)))
	assert.Equal(t, 25*time.Minute, mr.TTL(storage.AttemptsKey(id)))
	assert.Equal(t, 1, events.ofType(audit.EventTypeLockoutCreated))

	err := tracker.Check(context.Background(), id)
	require.Error(t, err)
	locked, ok := auth.AsError(err)
	require.True(t, ok)
	assert.Equal(t, auth.KindAccountLocked, locked.Kind)
	assert.Equal(t, 10, locked.RemainingMinutes)
}

func TestTracker_EscalationIsMonotonicAndSaturates(t *testing.T) {
	tracker, _, _, _ := setupTracker(t)
	id := AccountIdentity("u1")

	fail(t, tracker, id, 9)

	want := []int{10, 25, 45, 60, 360, 360, 360}
	prev := 0
	for i, minutes := range want {
		state := fail(t, tracker, id, 1)
		require.NotNil(t, state, "failure %d", 10+i)
		assert.Equal(t, minutes, state.LockoutMinutes, "failure %d", 10+i)
		assert.GreaterOrEqual(t, state.LockoutMinutes, prev)
		prev = state.LockoutMinutes
	}
}

func TestTracker_EscalatesAfterLockoutExpires(t *testing.T) {
	tracker, mr, _, clock := setupTracker(t)
	id := IPIdentity("10.0.0.2")
	ctx := context.Background()

	fail(t, tracker, id, 10)
	require.Error(t, tracker.Check(ctx, id))

	mr.FastForward(10 * time.Minute)
	clock.now = clock.now.Add(10 * time.Minute)
	require.NoError(t, tracker.Check(ctx, id))

	state := fail(t, tracker, id, 1)
	require.NotNil(t, state)
	assert.Equal(t, 25, state.LockoutMinutes)
}

func TestTracker_RemainingMinutesRoundsUp(t *testing.T) {
	tracker, _, _, clock := setupTracker(t)
	id := IPIdentity("10.0.0.3")

	fail(t, tracker, id, 10)
	clock.now = clock.now.Add(90 * time.Second)

	err := tracker.Check(context.Background(), id)
	locked, ok := auth.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 9, locked.RemainingMinutes)
}

func TestTracker_ClearResetsEverything(t *testing.T) {
	tracker, mr, _, _ := setupTracker(t)
	id := AccountIdentity("u2")
	ctx := context.Background()

	fail(t, tracker, id, 12)
	require.Error(t, tracker.Check(ctx, id))

	require.NoError(t, tracker.Clear(ctx, id))
	assert.False(t, mr.Exists(storage.AttemptsKey(id)))
	assert.False(t, mr.Exists(storage.LockoutKey(id)))
	assert.NoError(t, tracker.Check(ctx, id))

	// counting restarts from zero
	assert.Nil(t, fail(t, tracker, id, 9))
}

func TestTracker_StoreOutage(t *testing.T) {
	tracker, mr, _, _ := setupTracker(t)
	id := IPIdentity("10.0.0.4")
	ctx := context.Background()

	mr.SetError("LOADING")
	assert.NoError(t, tracker.Check(ctx, id), "lockout check fails open")

	_, err := tracker.RecordFailure(ctx, id, "invalid_token")
	assert.Error(t, err)

	assert.Error(t, tracker.Clear(ctx, id))
}

func TestTracker_CorruptRecordIgnored(t *testing.T) {
	tracker, mr, _, _ := setupTracker(t)
	id := IPIdentity("10.0.0.5")
	require.NoError(t, mr.Set(storage.LockoutKey(id), "{not json"))

	assert.NoError(t, tracker.Check(context.Background(), id))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"no window", func(c *Config) { c.AttemptWindow = 0 }},
		{"empty table", func(c *Config) { c.Escalation = nil }},
		{"descending table", func(c *Config) { c.Escalation = []time.Duration{time.Hour, time.Minute} }},
		{"non-positive entry", func(c *Config) { c.Escalation = []time.Duration{0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
