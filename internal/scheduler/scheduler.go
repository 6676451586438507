package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/air-quality-collector/internal/airquality"
	"github.com/i474232898/air-quality-collector/internal/collector"
)

// Runner is the part of collector.Service the scheduler needs.
type Runner interface {
	Run(ctx context.Context, days int) (airquality.Report, error)
}

// Scheduler periodically runs a collection on a cron schedule.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cron      string
	days      int
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. Schedules are evaluated in UTC.
func New(cron string, days int, timeout time.Duration, runner Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		cron:      cron,
		days:      days,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cron == "" {
		s.logger.Info("scheduler: no schedule configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Cron(s.cron).Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "cron", s.cron, "days", s.days)
	return nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduler: running collection job")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.runner.Run(ctx, s.days)
	switch {
	case errors.Is(err, collector.ErrRunInProgress):
		s.logger.Warn("scheduler: previous run still in progress; skipping")
		return
	case err != nil:
		s.logger.Error("scheduler: collection failed", "error", err)
	}
	s.logger.Info("scheduler: completed collection job", "id", report.ID, "complete", report.Complete)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
