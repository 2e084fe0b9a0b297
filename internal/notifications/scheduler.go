package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig holds cron expressions for the background jobs.
type SchedulerConfig struct {
	ReminderSpec  string
	CleanupSpec   string
	Retention     time.Duration
	StatsInterval time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ReminderSpec:  "0 8 * * *",
		CleanupSpec:   "30 3 * * *",
		Retention:     90 * 24 * time.Hour,
		StatsInterval: time.Minute,
	}
}

// Scheduler runs the reminder scan and queue maintenance on cron schedules in UTC.
type Scheduler struct {
	config    SchedulerConfig
	cron      *cron.Cron
	reminders *Reminders
	repo      Repository
	now       func() time.Time
}

// NewScheduler registers the jobs. It fails on an invalid cron expression.
func NewScheduler(config SchedulerConfig, reminders *Reminders, repo Repository) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	s := &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reminders: reminders,
		repo:      repo,
		now:       time.Now,
	}

	if _, err := s.cron.AddFunc(config.ReminderSpec, s.runReminders); err != nil {
		return nil, fmt.Errorf("schedule reminders %q: %w", config.ReminderSpec, err)
	}
	if config.CleanupSpec != "" && config.Retention > 0 {
		if _, err := s.cron.AddFunc(config.CleanupSpec, s.runCleanup); err != nil {
			return nil, fmt.Errorf("schedule cleanup %q: %w", config.CleanupSpec, err)
		}
	}
	if config.StatsInterval > 0 {
		s.cron.Schedule(cron.Every(config.StatsInterval), cron.FuncJob(s.runStats))
	}

	return s, nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	slog.Info("starting notification scheduler",
		"reminders", s.config.ReminderSpec,
		"cleanup", s.config.CleanupSpec,
	)
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		slog.Info("notification scheduler stopped")
	case <-ctx.Done():
		slog.Warn("notification scheduler stop timed out")
	}
}

// RunReminders performs one reminder scan now.
func (s *Scheduler) RunReminders(ctx context.Context) (ScanResult, error) {
	return s.reminders.Scan(ctx, s.now())
}

func (s *Scheduler) runReminders() {
	start := time.Now()
	result, err := s.RunReminders(context.Background())
	if err != nil {
		slog.Error("reminder scan failed", "error", err)
		return
	}
	slog.Info("reminder scan finished",
		"preferences", result.Preferences,
		"due", result.Due,
		"enqueued", result.Enqueued,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"duration", time.Since(start),
	)
}

func (s *Scheduler) runCleanup() {
	deleted, err := s.repo.DeleteOldSentItems(context.Background(), s.config.Retention)
	if err != nil {
		slog.Error("notification cleanup failed", "error", err)
		return
	}
	slog.Info("notification cleanup finished", "deleted", deleted)
}

func (s *Scheduler) runStats() {
	stats, err := s.repo.GetQueueStats(context.Background())
	if err != nil {
		slog.Error("failed to get queue stats", "error", err)
		return
	}
	observeQueueStats(stats)
}
