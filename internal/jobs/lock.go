package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/senocak/authcore/internal/ids"
)

const lockPrefix = "job-lock:"

var ErrNotLocked = errors.New("jobs: not running under a job lock")

// Locker grants cluster-wide job locks with SET NX PX so only one replica
// runs a scheduled job at a time.
type Locker struct {
	rdb   *redis.Client
	env   string
	owner string
	now   func() time.Time
}

// LockerOption configures Locker.
type LockerOption func(*Locker)

// WithOwner overrides the holder name written into lock values.
func WithOwner(owner string) LockerOption {
	return func(l *Locker) {
		if owner != "" {
			l.owner = owner
		}
	}
}

// WithLockClock overrides time source (useful for tests).
func WithLockClock(fn func() time.Time) LockerOption {
	return func(l *Locker) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLocker scopes every lock key under env so environments sharing a Redis
// do not block each other.
func NewLocker(rdb *redis.Client, env string, opts ...LockerOption) *Locker {
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = ids.New()
	}
	l := &Locker{rdb: rdb, env: env, owner: owner, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the Redis key guarding job name.
func (l *Locker) Key(name string) string {
	return lockPrefix + l.env + ":" + name
}

// KeyPattern matches every lock key of this environment.
func (l *Locker) KeyPattern() string {
	return lockPrefix + l.env + ":*"
}

// Lock is a held job lock.
type Lock struct {
	locker   *Locker
	key      string
	value    string
	acquired time.Time
}

// TryLock acquires name for at most atMost. ok is false when another holder
// owns the lock.
func (l *Locker) TryLock(ctx context.Context, name string, atMost time.Duration) (*Lock, bool, error) {
	now := l.now()
	key := l.Key(name)
	value := fmt.Sprintf("ADDED:%s@%s", now.UTC().Format(time.RFC3339), l.owner)
	ok, err := l.rdb.SetNX(ctx, key, value, atMost).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{locker: l, key: key, value: value, acquired: now}, true, nil
}

// Unlock releases the lock, or shortens it to the remainder of atLeast when
// the job finished sooner, so fast jobs on skewed clocks do not run twice.
func (lk *Lock) Unlock(ctx context.Context, atLeast time.Duration) error {
	remaining := atLeast - lk.locker.now().Sub(lk.acquired)
	if remaining > 0 {
		if err := lk.locker.rdb.SetXX(ctx, lk.key, lk.value, remaining).Err(); err != nil {
			return fmt.Errorf("extend %s: %w", lk.key, err)
		}
		return nil
	}
	if err := lk.locker.rdb.Del(ctx, lk.key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", lk.key, err)
	}
	return nil
}

type heldLockKey struct{}

func withHeldLock(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, heldLockKey{}, name)
}

// AssertLocked returns ErrNotLocked unless ctx belongs to a job running under its lock.
func AssertLocked(ctx context.Context) error {
	if name, _ := ctx.Value(heldLockKey{}).(string); name != "" {
		return nil
	}
	return ErrNotLocked
}
