package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
)

// Message is a rendered subject and body.
type Message struct {
	Subject string
	Body    string
}

// Dispatcher resolves where a user's message goes and hands it to the channel sender.
type Dispatcher struct {
	repo    Repository
	users   UserLookup
	senders map[domain.ChannelType]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(repo Repository, users UserLookup, senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{
		repo:    repo,
		users:   users,
		senders: senderMap,
	}
}

// HasSender reports whether a sender is registered for channel.
func (d *Dispatcher) HasSender(channel domain.ChannelType) bool {
	_, ok := d.senders[channel]
	return ok
}

// Deliver sends msg to ownerID over channel without recording it.
func (d *Dispatcher) Deliver(ctx context.Context, ownerID string, msg Message, channel domain.ChannelType) error {
	sender, ok := d.senders[channel]
	if !ok {
		return ErrChannelDisabled
	}

	target, err := d.resolveTarget(ctx, ownerID, channel)
	if err != nil {
		return err
	}

	return sender.Send(ctx, Notification{
		To:      target,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
}

// Dispatch delivers msg immediately and records the outcome in the user's
// notification log. The returned item is recorded even when delivery failed.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID string, msg Message, channel domain.ChannelType, kind MessageKind) (*QueueItem, error) {
	start := time.Now()
	sendErr := d.Deliver(ctx, ownerID, msg, channel)

	now := time.Now().UTC()
	item := &QueueItem{
		UserID:        ownerID,
		Channel:       channel,
		Kind:          kind,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Status:        QueueStatusSent,
		Attempts:      1,
		MaxAttempts:   1,
		NextAttemptAt: now,
		SentAt:        &now,
	}
	if sendErr != nil {
		errMsg := sendErr.Error()
		item.Status = QueueStatusFailed
		item.LastError = &errMsg
		item.SentAt = nil
		observeDelivery(channel, outcomeFailed, 0)
	} else {
		observeDelivery(channel, outcomeSent, time.Since(start))
	}

	if _, err := d.repo.EnqueueNotification(ctx, item); err != nil {
		slog.Error("failed to record notification",
			"user_id", ownerID,
			"channel_type", channel,
			"error", err,
		)
		if sendErr == nil {
			return nil, fmt.Errorf("record notification: %w", err)
		}
	}

	return item, sendErr
}

func (d *Dispatcher) resolveTarget(ctx context.Context, ownerID string, channel domain.ChannelType) (string, error) {
	pref, err := d.repo.GetPreference(ctx, ownerID, channel)
	switch {
	case errors.Is(err, ErrPreferenceNotFound) && channel == domain.ChannelTypeEmail:
		def := domain.DefaultNotificationPreference(ownerID)
		pref = &def
	case err != nil:
		return "", err
	}

	if !pref.Enabled {
		return "", ErrPreferenceDisabled
	}
	if pref.Target != "" {
		return pref.Target, nil
	}

	if channel == domain.ChannelTypeEmail && d.users != nil {
		user, err := d.users.GetUserByID(ctx, ownerID)
		if err != nil {
			return "", fmt.Errorf("lookup user: %w", err)
		}
		if user.Email != "" {
			return user.Email, nil
		}
	}
	return "", ErrNoTarget
}
