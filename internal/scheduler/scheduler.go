// Package scheduler repeats pipeline runs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
	"github.com/go-co-op/gocron"
)

// ErrRunInProgress is returned by TriggerRun while a run is executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.RunSummary, error)
}

// Scheduler runs the pipeline immediately and then every interval. Runs never
// overlap; a tick that fires during a run is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. interval must be positive.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. Runs
// receive a context derived from ctx that is canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.scheduler.Every(s.interval).Do(s.runOnce); err != nil {
		s.cancel()
		return err
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// TriggerRun starts an extra run in the background.
func (s *Scheduler) TriggerRun() error {
	if s.ctx == nil {
		return errors.New("scheduler is not started")
	}
	if s.running.Load() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce()
	}()
	return nil
}

// Stop cancels the in-flight run, stops future ticks and waits for running
// jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("skipping run, previous run still in progress")
		return
	}
	defer s.running.Store(false)

	if s.ctx.Err() != nil {
		return
	}

	summary, err := s.runner.Run(s.ctx)
	if err != nil {
		s.logger.Error("scheduled run failed",
			"date_request", summary.DateRequest,
			"stage", summary.FailedStage,
			"error", err,
		)
		return
	}
	s.logger.Info("scheduled run finished", "date_request", summary.DateRequest)
}
