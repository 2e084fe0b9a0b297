package notifications

import (
	"context"

	"github.com/bissquit/subtrack/internal/domain"
)

// Notification is a single message addressed to one delivery target.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}
