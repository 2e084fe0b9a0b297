package notifications

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/bissquit/subtrack/internal/domain"
)

// NotificationLogLimit is the number of log entries returned to a user.
const NotificationLogLimit = 50

var telegramChatID = regexp.MustCompile(`^(-?\d{1,20}|@[A-Za-z][A-Za-z0-9_]{4,31})$`)

// AvailableChannels lists the channel types that have a configured sender.
type AvailableChannels struct {
	Channels []domain.ChannelType `json:"channels"`
}

// Service provides notifications business logic.
type Service struct {
	repo       Repository
	dispatcher *Dispatcher
	renderer   *Renderer
}

// NewService creates a new notifications service.
func NewService(repo Repository, dispatcher *Dispatcher, renderer *Renderer) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		renderer:   renderer,
	}
}

// ListPreferences returns the user's preferences, or the default email
// preference when nothing is stored.
func (s *Service) ListPreferences(ctx context.Context, userID string) ([]domain.NotificationPreference, error) {
	prefs, err := s.repo.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return []domain.NotificationPreference{domain.DefaultNotificationPreference(userID)}, nil
	}
	return prefs, nil
}

// UpsertPreference creates or replaces the user's preference for pref.Channel.
func (s *Service) UpsertPreference(ctx context.Context, userID string, pref domain.NotificationPreference) (*domain.NotificationPreference, error) {
	pref.UserID = userID
	if pref.DaysInAdvance == 0 {
		pref.DaysInAdvance = domain.DefaultDaysInAdvance
	}
	if err := pref.Validate(); err != nil {
		return nil, err
	}
	if !s.dispatcher.HasSender(pref.Channel) {
		return nil, ErrChannelDisabled
	}
	if err := validateTarget(pref.Channel, pref.Target); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertPreference(ctx, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// DeletePreference removes the user's preference for channel.
func (s *Service) DeletePreference(ctx context.Context, userID string, channel domain.ChannelType) error {
	if !channel.IsValid() {
		return domain.ErrInvalidChannel
	}
	return s.repo.DeletePreference(ctx, userID, channel)
}

// SendTest delivers a test message over channel right away and returns the log entry.
func (s *Service) SendTest(ctx context.Context, userID string, channel domain.ChannelType) (*QueueItem, error) {
	if !channel.IsValid() {
		return nil, domain.ErrInvalidChannel
	}

	msg, err := s.renderer.RenderTest(channel)
	if err != nil {
		return nil, err
	}

	item, err := s.dispatcher.Dispatch(ctx, userID, msg, channel, MessageKindTest)
	if err != nil {
		if isDeliveryError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return item, nil
}

// ListNotifications returns the latest notifications of the user, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]QueueItem, error) {
	return s.repo.ListUserNotifications(ctx, userID, NotificationLogLimit)
}

// GetAvailableChannels returns the channel types users can configure.
func (s *Service) GetAvailableChannels() AvailableChannels {
	channels := make([]domain.ChannelType, 0, len(channelTypes))
	for _, ch := range channelTypes {
		if s.dispatcher.HasSender(ch) {
			channels = append(channels, ch)
		}
	}
	return AvailableChannels{Channels: channels}
}

// validateTarget checks the delivery target format. Email may be empty and
// then falls back to the profile address.
func validateTarget(channel domain.ChannelType, target string) error {
	switch channel {
	case domain.ChannelTypeEmail:
		if target == "" {
			return nil
		}
		addr, err := mail.ParseAddress(target)
		if err != nil || addr.Address != target {
			return fmt.Errorf("%w: email address is malformed", ErrInvalidTarget)
		}
	case domain.ChannelTypeTelegram:
		if !telegramChatID.MatchString(target) {
			return fmt.Errorf("%w: telegram chat id or @username is required", ErrInvalidTarget)
		}
	case domain.ChannelTypePush:
		if target == "" {
			return fmt.Errorf("%w: device token is required", ErrInvalidTarget)
		}
	}
	return nil
}
