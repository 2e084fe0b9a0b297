package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/subtrack/internal/billing"
	"github.com/bissquit/subtrack/internal/domain"
)

// ScanResult summarizes one reminder scan.
type ScanResult struct {
	Preferences int
	Due         int
	Enqueued    int
	Duplicates  int
	Errors      int
}

// Reminders turns upcoming payments into queued notifications.
type Reminders struct {
	repo        Repository
	subs        SubscriptionSource
	renderer    *Renderer
	maxAttempts int
}

// NewReminders creates a reminder scanner. Queued items get maxAttempts delivery attempts.
func NewReminders(repo Repository, subs SubscriptionSource, renderer *Renderer, maxAttempts int) *Reminders {
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return &Reminders{
		repo:        repo,
		subs:        subs,
		renderer:    renderer,
		maxAttempts: maxAttempts,
	}
}

// Scan enqueues one reminder per subscription, payment date and channel for
// every enabled preference whose window covers the next payment. Already
// queued reminders are skipped.
func (r *Reminders) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	var result ScanResult

	prefs, err := r.repo.ListEnabledPreferences(ctx)
	if err != nil {
		return result, fmt.Errorf("list enabled preferences: %w", err)
	}
	result.Preferences = len(prefs)

	today := domain.DateOf(now)
	cache := make(map[string][]domain.Subscription)

	for _, pref := range prefs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		subs, ok := cache[pref.UserID]
		if !ok {
			subs, err = r.subs.ListByOwner(ctx, pref.UserID)
			if err != nil {
				slog.Error("failed to list subscriptions for reminders", "user_id", pref.UserID, "error", err)
				result.Errors++
				continue
			}
			cache[pref.UserID] = subs
		}

		report := billing.Upcoming(subs, today, pref.DaysInAdvance)
		for _, w := range report.Warnings {
			slog.Warn("subscription skipped by reminders",
				"subscription_id", w.SubscriptionID,
				"reason", w.Reason,
			)
		}

		for _, payment := range report.Payments {
			result.Due++
			inserted, err := r.enqueue(ctx, pref, payment)
			switch {
			case err != nil:
				slog.Error("failed to enqueue reminder",
					"subscription_id", payment.Subscription.ID,
					"channel_type", pref.Channel,
					"error", err,
				)
				result.Errors++
			case inserted:
				result.Enqueued++
			default:
				result.Duplicates++
			}
		}
	}

	observeReminderScan(result)
	return result, nil
}

func (r *Reminders) enqueue(ctx context.Context, pref domain.NotificationPreference, payment billing.UpcomingPayment) (bool, error) {
	sub := payment.Subscription
	data := ReminderData{
		Name:      sub.Name,
		Category:  sub.Category,
		Cycle:     string(sub.Cycle),
		Price:     sub.Price,
		DueDate:   payment.DueDate,
		DaysUntil: payment.DaysUntil,
	}
	if sub.Notes != nil {
		data.Notes = *sub.Notes
	}

	msg, err := r.renderer.RenderReminder(pref.Channel, data)
	if err != nil {
		return false, err
	}

	subID := sub.ID
	due := payment.DueDate
	key := DedupKey(sub.ID, payment.DueDate, pref.Channel)
	item := &QueueItem{
		UserID:         pref.UserID,
		SubscriptionID: &subID,
		Channel:        pref.Channel,
		Kind:           MessageKindReminder,
		DueDate:        &due,
		DedupKey:       &key,
		Subject:        msg.Subject,
		Body:           msg.Body,
		Status:         QueueStatusPending,
		MaxAttempts:    r.maxAttempts,
		NextAttemptAt:  time.Now().UTC(),
	}
	return r.repo.EnqueueNotification(ctx, item)
}

// DedupKey identifies a reminder for one payment on one channel.
func DedupKey(subscriptionID string, due domain.Date, channel domain.ChannelType) string {
	return fmt.Sprintf("%s:%s:%s", subscriptionID, due, channel)
}
