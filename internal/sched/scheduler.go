// Package sched runs named background jobs on fixed intervals or at fixed
// UTC wall-clock times. Delivery is at-least-once: a job may fire twice
// around process restarts, so everything scheduled here must be idempotent.
package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"coinrush/internal/metrics"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	log *slog.Logger
	wg  sync.WaitGroup
	now func() time.Time
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{log: logger, now: time.Now}
}

// Every runs job once per interval until ctx is cancelled.
func (s *Scheduler) Every(ctx context.Context, name string, every time.Duration, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		s.log.Info("job scheduled", "job", name, "every", every.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx, name, job)
			}
		}
	}()
}

// DailyAt runs job every day at hh:mm UTC.
func (s *Scheduler) DailyAt(ctx context.Context, name string, hour, minute int, job Job) {
	s.at(ctx, name, job, func(after time.Time) time.Time {
		return nextDaily(after, hour, minute)
	})
}

// MonthlyAt runs job on the given day of every month at hh:mm UTC.
func (s *Scheduler) MonthlyAt(ctx context.Context, name string, day, hour, minute int, job Job) {
	s.at(ctx, name, job, func(after time.Time) time.Time {
		return nextMonthly(after, day, hour, minute)
	})
}

func (s *Scheduler) at(ctx context.Context, name string, job Job, next func(time.Time) time.Time) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			fireAt := next(s.now().UTC())
			s.log.Info("job scheduled", "job", name, "at", fireAt.Format(time.RFC3339))
			timer := time.NewTimer(time.Until(fireAt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				s.run(ctx, name, job)
			}
		}
	}()
}

// Wait blocks until all job loops have observed cancellation and exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run executes one job invocation. Failures are logged and counted, never
// propagated; the next scheduled run retries from scratch.
func (s *Scheduler) run(ctx context.Context, name string, job Job) {
	runID := uuid.NewString()
	start := s.now()
	if err := job(ctx); err != nil {
		metrics.RecordJobFailure(name)
		s.log.Error("job failed", "job", name, "run_id", runID, "err", err)
		return
	}
	s.log.Info("job complete", "job", name, "run_id", runID, "took", time.Since(start).String())
}

func nextDaily(after time.Time, hour, minute int) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextMonthly(after time.Time, day, hour, minute int) time.Time {
	next := time.Date(after.Year(), after.Month(), day, hour, minute, 0, 0, time.UTC)
	if !next.After(after) {
		next = time.Date(after.Year(), after.Month()+1, day, hour, minute, 0, 0, time.UTC)
	}
	return next
}
