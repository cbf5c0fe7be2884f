package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// Store is the shared key-value contract consumed by the pipeline stages.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// IncrWithWindow increments key and sets its expiry to window when the
	// counter was created by this call.
	IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	// SetAddBounded adds member unless the set already holds max members.
	// A member already present is always accepted.
	SetAddBounded(ctx context.Context, key, member string, max int64, ttl time.Duration) (BoundedAddResult, error)
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	SetCard(ctx context.Context, key string) (int64, error)
	SetIsMember(ctx context.Context, key, member string) (bool, error)

	// ListAppend pushes value to the head of the list, trims it to maxLen
	// entries and refreshes its expiry.
	ListAppend(ctx context.Context, key, value string, maxLen int64, ttl time.Duration) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ScanKeys calls fn for every key matching pattern.
	ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error

	Ping(ctx context.Context) error
	Close() error
}

// BoundedAddResult reports the outcome of SetAddBounded.
type BoundedAddResult struct {
	Added         bool  // member was inserted by this call
	AlreadyMember bool  // member was present before the call
	Size          int64 // set cardinality after the call
}

// Accepted reports whether member is in the set after the call.
func (r BoundedAddResult) Accepted() bool {
	return r.Added || r.AlreadyMember
}

// Config for the Redis store
type Config struct {
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// OpTimeout bounds every individual store call
	OpTimeout time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		RedisURL:        "redis://localhost:6379/0",
		RedisDB:         -1,
		RedisMaxRetries: 3,
		RedisPoolSize:   20,
		OpTimeout:       500 * time.Millisecond,
	}
}
