// Package notifications provides payment reminders: per-user channel
// preferences, a persistent delivery queue and the senders behind it.
package notifications

import (
	"context"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
)

// Repository defines the interface for notifications data access.
type Repository interface {
	// Preferences
	ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error)
	GetPreference(ctx context.Context, userID string, channel domain.ChannelType) (*domain.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error
	DeletePreference(ctx context.Context, userID string, channel domain.ChannelType) error
	// ListEnabledPreferences returns every enabled preference. Users without any
	// stored preference are returned with the default email preference.
	ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreference, error)

	// Queue
	// EnqueueNotification inserts item and reports false when an item with the
	// same dedup key already exists.
	EnqueueNotification(ctx context.Context, item *QueueItem) (bool, error)
	FetchPendingNotifications(ctx context.Context, limit int) ([]*QueueItem, error)
	MarkAsSent(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, err error) error
	MarkForRetry(ctx context.Context, id string, err error, nextAttempt time.Time) error
	GetQueueStats(ctx context.Context) (*QueueStats, error)
	ListUserNotifications(ctx context.Context, userID string, limit int) ([]QueueItem, error)
	DeleteOldSentItems(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SubscriptionSource lists the subscriptions reminders are computed from.
type SubscriptionSource interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
}

// UserLookup resolves stored profiles, used for the default email target.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}
