package app

import (
	"context"
	"fmt"

	"github.com/bissquit/subtrack/internal/config"
	"github.com/bissquit/subtrack/internal/notifications"
	"github.com/bissquit/subtrack/internal/notifications/email"
	notificationspostgres "github.com/bissquit/subtrack/internal/notifications/postgres"
	"github.com/bissquit/subtrack/internal/notifications/push"
	"github.com/bissquit/subtrack/internal/notifications/telegram"
)

// buildNotifications builds the reminder pipeline and starts its jobs. Only
// enabled senders are registered, so other channels are reported unavailable.
func (a *App) buildNotifications(
	ctx context.Context,
	repo *notificationspostgres.Repository,
	subs notifications.SubscriptionSource,
	users notifications.UserLookup,
) (*notifications.Service, error) {
	cfg := a.config.Notifications

	renderer, err := notifications.NewRenderer(cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	var senders []notifications.Sender
	if cfg.Enabled {
		if senders, err = buildSenders(cfg); err != nil {
			return nil, err
		}
	}

	channels := make([]string, 0, len(senders))
	for _, s := range senders {
		channels = append(channels, string(s.Type()))
	}
	a.logger.Info("notifications configured", "enabled", cfg.Enabled, "channels", channels)

	dispatcher := notifications.NewDispatcher(repo, users, senders...)
	service := notifications.NewService(repo, dispatcher, renderer)
	if !cfg.Enabled {
		return service, nil
	}

	a.worker = notifications.NewWorker(notifications.WorkerConfig{
		NumWorkers:   cfg.Worker.NumWorkers,
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval,
		Retry: notifications.RetryPolicy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialBackoff:    cfg.Retry.InitialBackoff,
			MaxBackoff:        cfg.Retry.MaxBackoff,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
	}, repo, dispatcher)

	schedule := notifications.DefaultSchedulerConfig()
	schedule.ReminderSpec = cfg.ReminderSchedule
	schedule.CleanupSpec = cfg.CleanupSchedule
	schedule.Retention = cfg.Retention

	reminders := notifications.NewReminders(repo, subs, renderer, cfg.Retry.MaxAttempts)
	a.scheduler, err = notifications.NewScheduler(schedule, reminders, repo)
	if err != nil {
		return nil, fmt.Errorf("create notification scheduler: %w", err)
	}

	a.worker.Start(ctx)
	a.scheduler.Start()
	return service, nil
}

func buildSenders(cfg config.NotificationsConfig) ([]notifications.Sender, error) {
	var senders []notifications.Sender

	if cfg.Email.Enabled {
		s, err := email.NewSender(email.Config{
			Enabled:      true,
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromAddress:  cfg.Email.FromAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}
		senders = append(senders, s)
	}

	if cfg.Telegram.Enabled {
		s, err := telegram.NewSender(telegram.Config{
			Enabled:   true,
			BotToken:  cfg.Telegram.BotToken,
			RateLimit: cfg.Telegram.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("create telegram sender: %w", err)
		}
		senders = append(senders, s)
	}

	if cfg.Push.Enabled {
		s, err := push.NewSender(push.Config{
			Enabled:    true,
			GatewayURL: cfg.Push.GatewayURL,
			APIKey:     cfg.Push.APIKey,
			Timeout:    cfg.Push.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create push sender: %w", err)
		}
		senders = append(senders, s)
	}

	return senders, nil
}
