// Package jobs runs periodic maintenance work under cluster-wide locks.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/senocak/authcore/internal/obs"
)

const (
	DefaultLockAtMostFor  = 30 * time.Second
	DefaultLockAtLeastFor = 5 * time.Second
)

// Job is one scheduled task. Spec uses the six-field cron syntax with seconds.
type Job struct {
	Name           string
	Spec           string
	LockAtMostFor  time.Duration
	LockAtLeastFor time.Duration
	Run            func(ctx context.Context) error
}

// Scheduler wraps robfig/cron and runs each job only while holding its lock.
type Scheduler struct {
	cron   *cron.Cron
	locker *Locker
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler constructs Scheduler. logger may be nil.
func NewScheduler(locker *Locker, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{l: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		locker: locker,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job.
func (s *Scheduler) Add(job Job) error {
	if job.LockAtMostFor <= 0 {
		job.LockAtMostFor = DefaultLockAtMostFor
	}
	if job.LockAtLeastFor <= 0 {
		job.LockAtLeastFor = DefaultLockAtLeastFor
	}
	if _, err := s.cron.AddFunc(job.Spec, func() {
		if _, err := s.RunOnce(s.ctx, job); err != nil {
			s.logger.Error("job failed", "job", job.Name, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever is first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce executes job if its lock can be taken. ran is false when another
// holder owns the lock.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (ran bool, err error) {
	lock, ok, err := s.locker.TryLock(ctx, job.Name, job.LockAtMostFor)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.DebugContext(ctx, "job skipped, lock held elsewhere", "job", job.Name)
		return false, nil
	}
	defer func() {
		if uerr := lock.Unlock(context.WithoutCancel(ctx), job.LockAtLeastFor); uerr != nil {
			s.logger.Warn("job unlock failed", "job", job.Name, "error", uerr)
		}
	}()

	jobCtx, _ := obs.WithRequestFields(withHeldLock(ctx, job.Name))
	obs.TagUser(jobCtx, "scheduler")
	return true, job.Run(jobCtx)
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
