// Package scheduler periodically recomputes the series of configured regions.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/pipeline"
)

// Runner computes the series of a region.
type Runner interface {
	Run(ctx context.Context, region string, opts pipeline.RunOptions) (pipeline.Result, error)
}

// Store keeps fresh results for the HTTP API.
type Store interface {
	Put(result pipeline.Result)
}

// Publisher forwards fresh series to downstream consumers.
type Publisher interface {
	PublishSeries(ctx context.Context, region string, generatedAt time.Time, series domain.Series) error
}

// Scheduler refreshes regions one after another on a fixed interval. Each
// region run already fetches its stations concurrently.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	store     Store
	publisher Publisher
	regions   []string
	interval  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. publisher may be nil.
func New(regions []string, interval time.Duration, runner Runner, store Store, publisher Publisher, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		store:     store,
		publisher: publisher,
		regions:   regions,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the refresh job, runs it immediately, and returns.
func (s *Scheduler) Start() error {
	if len(s.regions) == 0 {
		s.logger.Info("scheduler: no regions configured; nothing to schedule")
		return nil
	}
	if s.interval <= 0 {
		s.interval = 24 * time.Hour
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		s.RefreshAll(s.ctx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduler started", "regions", s.regions, "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// RefreshAll recomputes every configured region and returns the number that
// succeeded. A failing region is logged and does not stop the others.
func (s *Scheduler) RefreshAll(ctx context.Context) int {
	start := time.Now()
	ok := 0
	for _, region := range s.regions {
		if ctx.Err() != nil {
			break
		}
		if err := s.refresh(ctx, region); err != nil {
			s.logger.Error("region refresh failed", "region", region, "error", err)
			continue
		}
		ok++
	}
	s.logger.Info("scheduled refresh complete", "regions", len(s.regions), "succeeded", ok, "duration", time.Since(start))
	return ok
}

func (s *Scheduler) refresh(ctx context.Context, region string) error {
	result, err := s.runner.Run(ctx, region, pipeline.RunOptions{Quiet: true})
	if err != nil {
		return err
	}
	if len(result.Series) == 0 {
		return errors.New("empty series")
	}
	s.store.Put(result)
	if s.publisher != nil {
		return s.publisher.PublishSeries(ctx, region, result.GeneratedAt, result.Series)
	}
	return nil
}

// Stop cancels a running refresh and any future jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
