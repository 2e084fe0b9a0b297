// Package postgres provides PostgreSQL implementation of notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// staleProcessingAfter returns items stuck in processing to the pool.
const staleProcessingAfter = 5 * time.Minute

const preferenceColumns = `id, user_id, channel, days_in_advance, enabled, target, created_at, updated_at`

const queueColumns = `id, user_id, subscription_id, channel, kind, due_date, dedup_key, subject, body,
	status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at, sent_at`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListPreferences returns all stored preferences of a user.
func (r *Repository) ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1 ORDER BY channel`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]domain.NotificationPreference, 0)
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, *pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return prefs, nil
}

// GetPreference returns the user's preference for a channel.
func (r *Repository) GetPreference(ctx context.Context, userID string, channel domain.ChannelType) (*domain.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1 AND channel = $2`

	pref, err := scanPreference(r.db.QueryRow(ctx, query, userID, channel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return pref, nil
}

// UpsertPreference inserts or replaces the preference keyed by user and channel.
func (r *Repository) UpsertPreference(ctx context.Context, pref *domain.NotificationPreference) error {
	query := `
		INSERT INTO notification_preferences (user_id, channel, days_in_advance, enabled, target)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, channel) DO UPDATE
		SET days_in_advance = EXCLUDED.days_in_advance,
			enabled = EXCLUDED.enabled,
			target = EXCLUDED.target,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		pref.UserID,
		pref.Channel,
		pref.DaysInAdvance,
		pref.Enabled,
		pref.Target,
	).Scan(&pref.ID, &pref.CreatedAt, &pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// DeletePreference removes the user's preference for a channel.
func (r *Repository) DeletePreference(ctx context.Context, userID string, channel domain.ChannelType) error {
	query := `DELETE FROM notification_preferences WHERE user_id = $1 AND channel = $2`
	result, err := r.db.Exec(ctx, query, userID, channel)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}

	if result.RowsAffected() == 0 {
		return notifications.ErrPreferenceNotFound
	}
	return nil
}

// ListEnabledPreferences returns enabled preferences plus the default email
// preference of every user who never stored one.
func (r *Repository) ListEnabledPreferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	query := `
		SELECT id::text, user_id, channel, days_in_advance, enabled, target, created_at, updated_at
		FROM notification_preferences
		WHERE enabled = true
		UNION ALL
		SELECT '', u.id, $1::text, $2::int, true, '', u.created_at, u.updated_at
		FROM users u
		WHERE NOT EXISTS (SELECT 1 FROM notification_preferences p WHERE p.user_id = u.id)
		ORDER BY 2, 3
	`
	rows, err := r.db.Query(ctx, query, domain.ChannelTypeEmail, domain.DefaultDaysInAdvance)
	if err != nil {
		return nil, fmt.Errorf("list enabled preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]domain.NotificationPreference, 0)
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, *pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return prefs, nil
}

// EnqueueNotification inserts a queue item. Items whose dedup key is already
// taken are skipped and reported with false.
func (r *Repository) EnqueueNotification(ctx context.Context, item *notifications.QueueItem) (bool, error) {
	if item.Status == "" {
		item.Status = notifications.QueueStatusPending
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_queue (user_id, subscription_id, channel, kind, due_date, dedup_key,
			subject, body, status, attempts, max_attempts, next_attempt_at, last_error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		item.UserID,
		item.SubscriptionID,
		item.Channel,
		item.Kind,
		dateArg(item.DueDate),
		item.DedupKey,
		item.Subject,
		item.Body,
		item.Status,
		item.Attempts,
		item.MaxAttempts,
		item.NextAttemptAt,
		item.LastError,
		item.SentAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("enqueue notification: %w", err)
	}
	return true, nil
}

// FetchPendingNotifications claims up to limit due items and marks them processing.
// Concurrent callers never receive the same item.
func (r *Repository) FetchPendingNotifications(ctx context.Context, limit int) ([]*notifications.QueueItem, error) {
	query := `
		WITH candidates AS (
			SELECT id
			FROM notification_queue
			WHERE (status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND updated_at < NOW() - ($2 * INTERVAL '1 second'))
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_queue AS q
		SET status = 'processing', updated_at = NOW()
		FROM candidates
		WHERE q.id = candidates.id
		RETURNING q.id, q.user_id, q.subscription_id, q.channel, q.kind, q.due_date, q.dedup_key, q.subject, q.body,
			q.status, q.attempts, q.max_attempts, q.next_attempt_at, q.last_error, q.created_at, q.updated_at, q.sent_at
	`

	rows, err := r.db.Query(ctx, query, limit, int(staleProcessingAfter.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("fetch pending notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*notifications.QueueItem, 0, limit)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// MarkAsSent marks an item as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent', attempts = attempts + 1, sent_at = NOW(), updated_at = NOW(), last_error = NULL
		WHERE id = $1
	`
	return r.execQueueUpdate(ctx, "mark as sent", query, id)
}

// MarkAsFailed marks an item as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, cause error) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	return r.execQueueUpdate(ctx, "mark as failed", query, id, errorText(cause))
}

// MarkForRetry returns an item to pending with the next attempt time.
func (r *Repository) MarkForRetry(ctx context.Context, id string, cause error, nextAttempt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.execQueueUpdate(ctx, "mark for retry", query, id, errorText(cause), nextAttempt)
}

func (r *Repository) execQueueUpdate(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s: queue item %v not found", op, args[0])
	}
	return nil
}

// GetQueueStats returns item counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_queue
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// ListUserNotifications returns the newest items of a user.
func (r *Repository) ListUserNotifications(ctx context.Context, userID string, limit int) ([]notifications.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM notification_queue WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]notifications.QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// DeleteOldSentItems removes sent items older than olderThan.
func (r *Repository) DeleteOldSentItems(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM notification_queue WHERE status = 'sent' AND sent_at < $1`
	result, err := r.db.Exec(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("delete old sent items: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanPreference(row pgx.Row) (*domain.NotificationPreference, error) {
	var pref domain.NotificationPreference
	err := row.Scan(
		&pref.ID,
		&pref.UserID,
		&pref.Channel,
		&pref.DaysInAdvance,
		&pref.Enabled,
		&pref.Target,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func scanQueueItem(row pgx.Row) (*notifications.QueueItem, error) {
	var (
		item    notifications.QueueItem
		dueDate *time.Time
	)
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.SubscriptionID,
		&item.Channel,
		&item.Kind,
		&dueDate,
		&item.DedupKey,
		&item.Subject,
		&item.Body,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextAttemptAt,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.SentAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate != nil {
		d := domain.DateOf(*dueDate)
		item.DueDate = &d
	}
	return &item, nil
}

func dateArg(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
