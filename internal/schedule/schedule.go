// Package schedule runs a job at a fixed interval and serializes runs with
// a named lock held in the store.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// JobName is the lock and log name of the import job.
const JobName = "update_social_posts"

// ErrLocked is returned by WithLock when another owner holds the lock.
var ErrLocked = errors.New("job is already running")

type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// WithLock runs fn while holding the named lock under a fresh owner token.
// The lock is released when fn returns, even if ctx was cancelled.
func WithLock(ctx context.Context, l Locker, name string, ttl time.Duration, fn func(context.Context) error) error {
	owner := uuid.NewString()
	ok, err := l.AcquireLock(ctx, name, owner, ttl)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if err := l.ReleaseLock(context.WithoutCancel(ctx), name, owner); err != nil {
			slog.Warn("release lock failed", "lock", name, "error", err)
		}
	}()
	return fn(ctx)
}

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	Logger   *slog.Logger
}

// Loop runs the job once immediately and then every Interval until ctx is
// done. A run in progress is not cancelled; Loop returns after it finishes.
// Run errors are logged and do not stop the loop.
func Loop(ctx context.Context, job Job) error {
	if job.Run == nil {
		return errors.New("schedule: job has no run func")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("schedule: interval must be positive (got %s)", job.Interval)
	}
	logger := job.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job", job.Name)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logger.Info("scheduler started", "interval", job.Interval.String())
	for {
		runOnce(ctx, job, logger)

		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, job Job, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	err := job.Run(context.WithoutCancel(ctx))
	switch {
	case err == nil:
	case errors.Is(err, ErrLocked):
		logger.Info("previous run still in progress, skipping")
	default:
		logger.Error("job run failed", "error", err)
	}
}
