// Package scheduler polls for due sources and kicks off one execution per
// source per interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Scheduler owns the polling loop. Multiple replicas may run concurrently;
// the per-source lock keeps them from double-harvesting.
type Scheduler struct {
	store  store.Store
	queue  queue.Queue
	locker Locker
	cfg    types.SchedulerConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Scheduler.
func New(st store.Store, q queue.Queue, locker Locker, cfg types.SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, queue: q, locker: locker, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock overrides the time source (for tests).
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "pollInterval", s.cfg.PollInterval)
	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick schedules every due source once. A failure on one source does not
// block the others.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.store.DueSources(ctx, s.now())
	if err != nil {
		return err
	}
	for _, src := range due {
		if err := s.schedule(ctx, src); err != nil {
			s.logger.Error("failed to schedule source", "source", src.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, src types.Source) error {
	locked, err := s.locker.TryLock(ctx, src.ID, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !locked {
		// Another replica is already harvesting this source.
		return nil
	}

	now := s.now()
	exec := types.Execution{
		ID:        ulid.Make().String(),
		SourceID:  src.ID,
		Status:    types.ExecutionPending,
		StartedAt: now,
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return err
	}
	metrics.ExecutionsStarted.Add(1)

	job := types.FetchJob{SourceID: src.ID, ExecutionID: exec.ID, URL: src.URL}
	err = queue.Publish(ctx, s.queue, types.StageFetch, job, queue.Options{
		DedupID: queue.JobID(exec.ID, types.StageFetch),
	})
	if err != nil {
		return err
	}

	// The next due time advances whether or not the run ends up succeeding;
	// failed runs retry through the queue, not through rescheduling.
	interval := src.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	if err := s.store.UpdateNextDue(ctx, src.ID, now.Add(interval)); err != nil {
		return err
	}

	s.logger.Info("execution scheduled", "source", src.ID, "execution", exec.ID)
	return nil
}
