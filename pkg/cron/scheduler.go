// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/sales-report/pkg/metrics"
	"github.com/FACorreiaa/sales-report/pkg/storage"
)

// DefaultSchedule runs the retention sweep once an hour.
const DefaultSchedule = "@every 1h"

// Scheduler removes job directories older than the retention window.
type Scheduler struct {
	cron      *cron.Cron
	store     storage.Storage
	retention time.Duration
	schedule  string
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a new retention scheduler. A zero retention disables
// sweeping.
func NewScheduler(store storage.Storage, retention time.Duration, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
}

// WithMetrics counts swept jobs
func (s *Scheduler) WithMetrics(m *metrics.Metrics) *Scheduler {
	s.metrics = m
	return s
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if s.retention <= 0 {
		s.logger.Info("job retention disabled, cron scheduler not started")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers a sweep.
func (s *Scheduler) RunNow() {
	go s.sweep()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("job retention sweep failed", slog.Any("error", err))
	}
}

// Sweep deletes every job created before now minus the retention window and
// returns how many were removed. Individual delete failures are logged and
// skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	removed, failed := 0, 0

	for _, job := range jobs {
		if !job.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.store.DeleteJob(ctx, job.ID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return removed, err
			}
			s.logger.Warn("failed to delete expired job",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err),
			)
			failed++
			continue
		}
		removed++
	}

	s.metrics.ObserveSwept(removed)
	s.logger.Info("job retention sweep completed",
		slog.Int("jobs_removed", removed),
		slog.Int("jobs_failed", failed),
		slog.Int("jobs_kept", len(jobs)-removed-failed),
	)
	return removed, nil
}
