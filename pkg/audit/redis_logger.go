package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carepoint/gatekeeper/pkg/storage"
)

const (
	// DefaultMaxEvents is how many recent events are kept per identity
	DefaultMaxEvents = 100
	// DefaultEventTTL is the expiry of an identity's event list after its last write
	DefaultEventTTL = 7 * 24 * time.Hour
)

// RedisLogger appends events to a bounded per-identity list in the shared store
type RedisLogger struct {
	store     storage.Store
	maxEvents int64
	ttl       time.Duration
}

// NewRedisLogger creates a store-backed event sink
func NewRedisLogger(store storage.Store, maxEvents int64, ttl time.Duration) *RedisLogger {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &RedisLogger{
		store:     store,
		maxEvents: maxEvents,
		ttl:       ttl,
	}
}

// Record appends event to security:events:{identifier}
func (l *RedisLogger) Record(ctx context.Context, event *SecurityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal security event: %w", err)
	}

	if err := l.store.ListAppend(ctx, storage.SecurityEventsKey(event.Identifier), string(data), l.maxEvents, l.ttl); err != nil {
		return fmt.Errorf("failed to store security event: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest events for identifier, newest first
func (l *RedisLogger) Recent(ctx context.Context, identifier string, limit int64) ([]*SecurityEvent, error) {
	if limit <= 0 || limit > l.maxEvents {
		limit = l.maxEvents
	}

	raw, err := l.store.ListRange(ctx, storage.SecurityEventsKey(identifier), 0, limit-1)
	if err != nil {
		return nil, err
	}

	events := make([]*SecurityEvent, 0, len(raw))
	for _, item := range raw {
		var event SecurityEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// Close is a no-op; the store is owned by the caller
func (l *RedisLogger) Close() error {
	return nil
}
