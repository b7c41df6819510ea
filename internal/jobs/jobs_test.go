package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/senocak/authcore/internal/cache"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestLockerTryLock(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	now := time.Date(2024, 5, 17, 14, 0, 0, 0, time.UTC)
	l := NewLocker(rdb, "ENV1", WithOwner("node-a"), WithLockClock(fixedClock(&now)))

	if got := l.Key("logPerformance"); got != "job-lock:ENV1:logPerformance" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := l.KeyPattern(); got != "job-lock:ENV1:*" {
		t.Fatalf("unexpected pattern %q", got)
	}

	value := "ADDED:2024-05-17T14:00:00Z@node-a"
	mock.ExpectSetNX("job-lock:ENV1:logPerformance", value, 30*time.Second).SetVal(true)
	mock.ExpectSetNX("job-lock:ENV1:logPerformance", value, 30*time.Second).SetVal(false)

	lock, ok, err := l.TryLock(context.Background(), "logPerformance", 30*time.Second)
	if err != nil || !ok || lock == nil {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}
	if _, ok, err := l.TryLock(context.Background(), "logPerformance", 30*time.Second); err != nil || ok {
		t.Fatalf("second TryLock must fail: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnlockHoldsForAtLeast(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	now := time.Date(2024, 5, 17, 14, 0, 0, 0, time.UTC)
	l := NewLocker(rdb, "ENV1", WithOwner("node-a"), WithLockClock(fixedClock(&now)))
	key := "job-lock:ENV1:j"
	value := "ADDED:2024-05-17T14:00:00Z@node-a"

	mock.ExpectSetNX(key, value, 30*time.Second).SetVal(true)
	mock.ExpectSetXX(key, value, 3*time.Second).SetVal(true)
	lock, _, err := l.TryLock(context.Background(), "j", 30*time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	now = now.Add(2 * time.Second)
	if err := lock.Unlock(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	mock.ExpectSetNX(key, "ADDED:2024-05-17T14:00:02Z@node-a", 30*time.Second).SetVal(true)
	mock.ExpectDel(key).SetVal(1)
	lock, _, err = l.TryLock(context.Background(), "j", 30*time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	now = now.Add(6 * time.Second)
	if err := lock.Unlock(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	now := time.Date(2024, 5, 17, 14, 0, 0, 0, time.UTC)
	l := NewLocker(rdb, "ENV1", WithOwner("node-a"), WithLockClock(fixedClock(&now)))
	s := NewScheduler(l, nil)
	key := "job-lock:ENV1:work"
	value := "ADDED:2024-05-17T14:00:00Z@node-a"

	var sawLock bool
	job := Job{Name: "work", Spec: "* * * * * *", LockAtMostFor: time.Minute, Run: func(ctx context.Context) error {
		sawLock = AssertLocked(ctx) == nil
		return errors.New("boom")
	}}

	mock.ExpectSetNX(key, value, time.Minute).SetVal(true)
	mock.ExpectDel(key).SetVal(1)
	ran, err := s.RunOnce(context.Background(), job)
	if !ran || err == nil || err.Error() != "boom" {
		t.Fatalf("RunOnce: ran=%v err=%v", ran, err)
	}
	if !sawLock {
		t.Fatal("job must run under its lock")
	}

	mock.ExpectSetNX(key, value, time.Minute).SetVal(false)
	ran, err = s.RunOnce(context.Background(), job)
	if ran || err != nil {
		t.Fatalf("held lock must skip: ran=%v err=%v", ran, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if AssertLocked(context.Background()) != ErrNotLocked {
		t.Fatal("plain context must not report a lock")
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	s := NewScheduler(NewLocker(rdb, "ENV1"), nil)
	if err := s.Add(Job{Name: "bad", Spec: "every minute", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("expected invalid spec error")
	}
	if err := s.Add(PerformanceJob(nil)); err != nil {
		t.Fatalf("Add PerformanceJob: %v", err)
	}
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestHumanSize(t *testing.T) {
	cases := map[uint64]string{
		0:             "0 Bytes",
		999:           "999 Bytes",
		1000:          "1 KB",
		1500:          "1.5 KB",
		1234567:       "1.23 MB",
		3_000_000_000: "3 GB",
	}
	for in, want := range cases {
		if got := HumanSize(in); got != want {
			t.Fatalf("HumanSize(%d)=%q, want %q", in, got, want)
		}
	}
}

type stubStats struct {
	st  cache.Stats
	err error
}

func (s stubStats) Stats(context.Context) (cache.Stats, error) { return s.st, s.err }

func TestCacheStatsJob(t *testing.T) {
	job := CacheStatsJob(stubStats{st: cache.Stats{Hits: 3, Misses: 1, Total: 4}}, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job = CacheStatsJob(stubStats{err: cache.ErrStore}, nil)
	if err := job.Run(context.Background()); !errors.Is(err, cache.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}
