package notifications

import (
	"time"

	"github.com/bissquit/subtrack/internal/domain"
)

// QueueStatus represents the status of a queue item.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

// MessageKind tells why a notification was produced.
type MessageKind string

// Message kinds.
const (
	MessageKindReminder MessageKind = "reminder"
	MessageKindTest     MessageKind = "test"
)

// QueueItem is a rendered notification waiting for delivery. Sent and failed
// items stay in the table and form the user's notification log.
type QueueItem struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	SubscriptionID *string            `json:"subscription_id,omitempty"`
	Channel        domain.ChannelType `json:"channel"`
	Kind           MessageKind        `json:"kind"`
	DueDate        *domain.Date       `json:"due_date,omitempty"`
	DedupKey       *string            `json:"-"`
	Subject        string             `json:"subject"`
	Body           string             `json:"body"`
	Status         QueueStatus        `json:"status"`
	Attempts       int                `json:"attempts"`
	MaxAttempts    int                `json:"-"`
	NextAttemptAt  time.Time          `json:"-"`
	LastError      *string            `json:"last_error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
}

// QueueStats contains queue statistics.
type QueueStats struct {
	Pending    int64
	Processing int64
	Sent       int64
	Failed     int64
}
