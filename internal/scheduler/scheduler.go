// Package scheduler runs the download and meteogram batch whenever a new
// ensemble run should be available.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/couchcryptid/ens-meteogram/internal/observability"
	"github.com/couchcryptid/ens-meteogram/internal/pipeline"
	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

// Downloader fetches the fields of a run into a directory.
type Downloader interface {
	DownloadRun(ctx context.Context, run domain.ForecastRun, dir string) ([]string, error)
}

// BatchRunner draws the meteograms of a run.
type BatchRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

// Options configures a Scheduler.
type Options struct {
	Schedule          string // cron expression, UTC
	AvailabilityDelay time.Duration
	DataDir           string
	Cities            []string
}

// Scheduler triggers one cycle per cron tick. A cycle targets the latest
// available run and does nothing if that run was already processed.
type Scheduler struct {
	cron       *gocron.Scheduler
	opts       Options
	downloader Downloader
	batch      BatchRunner
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	lastRun string
	ready   atomic.Bool
}

// New creates a Scheduler. Call Start to begin ticking.
func New(opts Options, d Downloader, b BatchRunner, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:       cron,
		opts:       opts,
		downloader: d,
		batch:      b,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start registers the cycle on the cron schedule and starts ticking in the
// background. ctx bounds every cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Cron(s.opts.Schedule).Do(func() {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.opts.Schedule, err)
	}
	s.cron.StartAsync()
	s.logger.Info("scheduler started", "schedule", s.opts.Schedule, "availability_delay", s.opts.AvailabilityDelay)
	return nil
}

// Stop halts future ticks.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// CheckReadiness reports ready once a cycle has completed.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no forecast run processed yet")
	}
	return nil
}

// RunCycle downloads the latest available run and draws its meteograms.
// Cycles are serialised; a run that already completed is skipped.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := domain.LatestRunNow(s.opts.AvailabilityDelay)
	log := s.logger.With("cycle", uuid.NewString(), "run", run.String())

	if run.String() == s.lastRun {
		log.Debug("run already processed, skipping")
		s.metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	log.Info("cycle started")
	if _, err := s.downloader.DownloadRun(ctx, run, s.opts.DataDir); err != nil {
		s.metrics.ScheduledRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("download run %s: %w", run, err)
	}

	report, err := s.batch.Run(ctx, pipeline.Request{Run: run, Cities: s.opts.Cities})
	if err != nil {
		s.metrics.ScheduledRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("batch for run %s: %w", run, err)
	}

	s.lastRun = run.String()
	s.ready.Store(true)
	s.metrics.ScheduledRuns.WithLabelValues("success").Inc()
	s.metrics.LastRunTime.Set(float64(run.Time().Unix()))
	log.Info("cycle finished", "rendered", len(report.Rendered), "failed", len(report.Failures))
	return nil
}
