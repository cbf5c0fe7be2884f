package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrWithWindowScript creates the counter with an expiry on first increment only,
// so later failures inside the window never extend it.
var incrWithWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// setAddBoundedScript returns {status, size}: 0 rejected, 1 already a member, 2 added.
var setAddBoundedScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return {1, redis.call('SCARD', KEYS[1])}
end
local n = redis.call('SCARD', KEYS[1])
if n >= tonumber(ARGV[2]) then
  return {0, n}
end
redis.call('SADD', KEYS[1], ARGV[1])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return {2, n + 1}
`)

// RedisStore implements Store on top of a Redis server
type RedisStore struct {
	client *redis.Client
	config Config
}

// NewRedisStore creates a new Redis-backed store and verifies connectivity
func NewRedisStore(config Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = DefaultConfig().OpTimeout
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = config.OpTimeout
	opts.WriteTimeout = config.OpTimeout
	opts.PoolTimeout = 2 * config.OpTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		config: config,
	}, nil
}

// Client exposes the underlying client for health checks
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

// Get returns the string value at key or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	} else if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value at key. A zero ttl means no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes keys. Missing keys are not an error.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Exists reports whether key is present
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// TTL returns the remaining time to live of key, or a negative duration when
// the key has no expiry or does not exist
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl %s: %w", key, err)
	}
	return ttl, nil
}

// Expire sets the expiry of key
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis pexpire %s: %w", key, err)
	}
	return nil
}

// IncrWithWindow atomically increments a counter, creating it with window as its TTL
func (s *RedisStore) IncrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := incrWithWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// SetAdd adds members to a set
func (s *RedisStore) SetAdd(ctx context.Context, key string, members ...string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, key, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

// SetAddBounded atomically adds member unless the set is already at max
func (s *RedisStore) SetAddBounded(ctx context.Context, key, member string, max int64, ttl time.Duration) (BoundedAddResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vals, err := setAddBoundedScript.Run(ctx, s.client, []string{key}, member, max, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return BoundedAddResult{}, fmt.Errorf("redis bounded sadd %s: %w", key, err)
	}
	if len(vals) != 2 {
		return BoundedAddResult{}, fmt.Errorf("redis bounded sadd %s: unexpected reply %v", key, vals)
	}

	return BoundedAddResult{
		Added:         vals[0] == 2,
		AlreadyMember: vals[0] == 1,
		Size:          vals[1],
	}, nil
}

// SetRemove removes members from a set
func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}
	return nil
}

// SetMembers lists all members of a set
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return members, nil
}

// SetCard returns the cardinality of a set
func (s *RedisStore) SetCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard %s: %w", key, err)
	}
	return n, nil
}

// SetIsMember reports whether member belongs to the set
func (s *RedisStore) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", key, err)
	}
	return ok, nil
}

// ListAppend pushes value, trims the list to maxLen and refreshes its TTL in one transaction
func (s *RedisStore) ListAppend(ctx context.Context, key, value string, maxLen int64, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, 0, maxLen-1)
		}
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis list append %s: %w", key, err)
	}
	return nil
}

// ListRange returns list entries between start and stop inclusive
func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	return vals, nil
}

// ScanKeys walks the keyspace with SCAN. The op timeout applies per batch,
// not to the whole walk.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		batchCtx, cancel := s.withTimeout(ctx)
		keys, next, err := s.client.Scan(batchCtx, cursor, pattern, 100).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}

		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
