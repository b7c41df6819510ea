package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultNamespace = "cache:"
	DefaultTTL       = 3600 * time.Second
)

// Stats summarises lookups since process start and the live key count.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Total    int64 `json:"total"`
	KeyCount int   `json:"keyCount"`
}

// ReadThrough layers namespaced, JSON encoded entries over a Store.
type ReadThrough struct {
	store      Store
	namespace  string
	defaultTTL time.Duration
	logger     *slog.Logger
	onLookup   func(hit bool)

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures ReadThrough.
type Option func(*ReadThrough)

// WithNamespace overrides the prefix put in front of every key.
func WithNamespace(ns string) Option {
	return func(c *ReadThrough) { c.namespace = ns }
}

// WithDefaultTTL sets the ttl used when a caller passes ttl <= 0.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *ReadThrough) {
		if d > 0 {
			c.defaultTTL = d
		}
	}
}

// WithLogger sets the logger used for degraded reads and failed writes.
func WithLogger(l *slog.Logger) Option {
	return func(c *ReadThrough) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLookupHook is called once per GetOrSet with the lookup outcome.
func WithLookupHook(fn func(hit bool)) Option {
	return func(c *ReadThrough) { c.onLookup = fn }
}

// New constructs a ReadThrough over store.
func New(store Store, opts ...Option) *ReadThrough {
	c := &ReadThrough{
		store:      store,
		namespace:  DefaultNamespace,
		defaultTTL: DefaultTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the backing store.
func (c *ReadThrough) Store() Store { return c.store }

func (c *ReadThrough) key(prefix, key string) string {
	return c.namespace + prefix + key
}

func (c *ReadThrough) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

func (c *ReadThrough) observe(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

// GetOrSet returns the cached value for prefix+key, or runs loader once,
// stores its result and returns it. A failing store read counts as a miss and
// a failing write after a successful load is logged; the loaded value wins in
// both cases. Loader errors propagate and nothing is cached.
func GetOrSet[T any](ctx context.Context, c *ReadThrough, key, prefix string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	full := c.key(prefix, key)

	raw, err := c.store.Get(ctx, full)
	switch {
	case err == nil:
		var v T
		derr := json.Unmarshal([]byte(raw), &v)
		if derr == nil {
			c.observe(true)
			return v, nil
		}
		c.logger.WarnContext(ctx, "cache_decode_failed", "key", full, "error", derr)
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WarnContext(ctx, "cache_read_failed", "key", full, "error", err)
	}
	c.observe(false)

	v, err := loader(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache_encode_failed", "key", full, "error", err)
		return v, nil
	}
	if err := c.store.Set(ctx, full, string(encoded), c.ttl(ttl)); err != nil {
		c.logger.WarnContext(ctx, "cache_write_failed", "key", full, "error", err)
	}
	return v, nil
}

// Set writes value under prefix+key unconditionally.
func (c *ReadThrough) Set(ctx context.Context, key, prefix string, value any, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.store.Set(ctx, c.key(prefix, key), string(encoded), c.ttl(ttl))
}

// Invalidate removes prefix+key. A missing key is not an error.
func (c *ReadThrough) Invalidate(ctx context.Context, key, prefix string) error {
	return c.store.Del(ctx, c.key(prefix, key))
}

// InvalidatePattern removes every key under namespace+pattern. Keys written
// concurrently may survive; the sweep is not atomic.
func (c *ReadThrough) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.store.Keys(ctx, c.namespace+pattern+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "cache_pattern_invalidated", "pattern", pattern, "keys", len(keys))
	return nil
}

// Stats reports hit and miss counters plus the number of keys in the namespace.
func (c *ReadThrough) Stats(ctx context.Context) (Stats, error) {
	hits, misses := c.hits.Load(), c.misses.Load()
	st := Stats{Hits: hits, Misses: misses, Total: hits + misses}
	keys, err := c.store.Keys(ctx, c.namespace+"*")
	if err != nil {
		return st, err
	}
	st.KeyCount = len(keys)
	return st, nil
}
