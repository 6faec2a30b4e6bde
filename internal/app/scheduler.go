/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/oz-TeamWizard/MealStack/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SubscriptionJobSchedule, s.jobs.ProcessSubscriptionCycle); err != nil {
		s.logger.Error("failed to schedule subscription cycle job", "error", err)
	} else {
		s.logger.Info("scheduled subscription cycle job", "schedule", s.config.SubscriptionJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.CodeSweepJobSchedule, s.jobs.SweepExpiredCodes); err != nil {
		s.logger.Error("failed to schedule verification code sweep job", "error", err)
	} else {
		s.logger.Info("scheduled verification code sweep job", "schedule", s.config.CodeSweepJobSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
