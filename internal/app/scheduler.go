/**
 * @description
 * Cron scheduler setup for the periodic jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/JeffiBR/Boot-WhatsApp/internal/config"
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
	if _, err := s.cron.AddFunc(s.config.SchedulerCronSpec, s.jobs.ScanDueSubscriptions); err != nil {
		s.logger.Error("failed to schedule due scan job", "error", err)
	} else {
		s.logger.Info("scheduled due scan job", "schedule", s.config.SchedulerCronSpec)
	}

	if _, err := s.cron.AddFunc(s.config.RetryScanCronSpec, s.jobs.ScanDueRetries); err != nil {
		s.logger.Error("failed to schedule retry scan job", "error", err)
	} else {
		s.logger.Info("scheduled retry scan job", "schedule", s.config.RetryScanCronSpec)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
