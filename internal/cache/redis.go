package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// Store is the key/value contract the read-through cache, CSRF repository and
// job endpoints depend on.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	ValuesForPattern(ctx context.Context, pattern string) (map[string]string, error)
	Ping(ctx context.Context) error
}

// NewRedisClient parses redisURL and pings the server before returning.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisStore implements Store on go-redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client. The client is owned by the caller.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get returns ErrCacheMiss when the key does not exist.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %w", ErrStore, key, err)
	}
	return v, nil
}

// Set stores value under key. A zero ttl keeps the key forever.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStore, key, err)
	}
	return nil
}

// Del removes keys; missing keys are ignored.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrStore, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN so large databases are not blocked.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", ErrStore, pattern, err)
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// ValuesForPattern returns key to value for every string key matching pattern.
// Keys that expire between SCAN and MGET are skipped.
func (s *RedisStore) ValuesForPattern(ctx context.Context, pattern string) (map[string]string, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget %s: %w", ErrStore, pattern, err)
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

// Ping reports whether the server answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStore, err)
	}
	return nil
}
