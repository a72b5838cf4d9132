// Package scheduler runs the weekly leaderboard rollover on a cron schedule,
// plus a periodic catch-up that heals missed boundaries after downtime.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/learnpath/gamify/internal/app/league"
)

// DefaultCron fires at Monday 00:00 in the scheduler's zone.
const DefaultCron = "0 0 * * 1"

// Roller is the part of the league service the scheduler drives.
type Roller interface {
	Rollover(ctx context.Context) (league.RolloverReport, error)
	RolloverDue(ctx context.Context) (bool, error)
}

// Config tunes the schedule.
type Config struct {
	Cron            string
	CatchUpInterval time.Duration
	Location        *time.Location
	Timeout         time.Duration
}

// Scheduler owns the gocron instance.
type Scheduler struct {
	cron    *gocron.Scheduler
	roller  Roller
	logger  *slog.Logger
	timeout time.Duration
}

// New registers the rollover and catch-up jobs without starting them.
func New(cfg Config, roller Roller, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}

	s := &Scheduler{
		cron:    gocron.NewScheduler(cfg.Location),
		roller:  roller,
		logger:  logger.With("component", "scheduler"),
		timeout: cfg.Timeout,
	}
	s.cron.SingletonModeAll()

	if _, err := s.cron.Cron(cfg.Cron).Tag("rollover").Do(s.runRollover); err != nil {
		return nil, fmt.Errorf("schedule rollover %q: %w", cfg.Cron, err)
	}
	if cfg.CatchUpInterval > 0 {
		if _, err := s.cron.Every(cfg.CatchUpInterval).Tag("catch-up").Do(s.runCatchUp); err != nil {
			return nil, fmt.Errorf("schedule catch-up: %w", err)
		}
	}
	return s, nil
}

// Start runs a catch-up immediately, then starts the jobs in the
// background.
func (s *Scheduler) Start(ctx context.Context) {
	s.catchUp(ctx)
	s.cron.StartAsync()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Jobs()))
}

// Stop halts the jobs. A rollover in flight runs to completion.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// RunNow performs a rollover outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (league.RolloverReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.roller.Rollover(ctx)
}

func (s *Scheduler) runRollover() {
	r, err := s.RunNow(context.Background())
	if err != nil {
		s.logger.Error("scheduled rollover failed", "error", err)
		return
	}
	if !r.Processed {
		s.logger.Info("scheduled rollover skipped", "week", r.WeekID, "reason", r.Message)
	}
}

func (s *Scheduler) runCatchUp() { s.catchUp(context.Background()) }

func (s *Scheduler) catchUp(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	due, err := s.roller.RolloverDue(ctx)
	if err != nil {
		s.logger.Warn("rollover catch-up check failed", "error", err)
		return
	}
	if !due {
		return
	}
	s.logger.Info("missed rollover detected, catching up")
	if _, err := s.roller.Rollover(ctx); err != nil {
		s.logger.Error("rollover catch-up failed", "error", err)
	}
}
