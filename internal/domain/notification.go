package domain

import (
	"errors"
	"time"
)

// ChannelType is a reminder delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail    ChannelType = "email"
	ChannelTypePush     ChannelType = "push"
	ChannelTypeTelegram ChannelType = "telegram"
)

// Bounds and defaults for reminder lead time.
const (
	MinDaysInAdvance     = 1
	MaxDaysInAdvance     = 30
	DefaultDaysInAdvance = 3
)

// ErrInvalidChannel is returned for an unknown channel type.
var ErrInvalidChannel = errors.New("invalid notification channel")

// ErrInvalidDaysInAdvance is returned when the lead time is out of bounds.
var ErrInvalidDaysInAdvance = errors.New("days in advance must be between 1 and 30")

// IsValid reports whether t is a known channel type.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeEmail, ChannelTypePush, ChannelTypeTelegram:
		return true
	}
	return false
}

// NotificationPreference controls reminders for one user on one channel.
type NotificationPreference struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Channel       ChannelType `json:"channel"`
	DaysInAdvance int         `json:"days_in_advance"`
	Enabled       bool        `json:"enabled"`
	Target        string      `json:"target,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DefaultNotificationPreference is what a user gets before configuring anything.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:        userID,
		Channel:       ChannelTypeEmail,
		DaysInAdvance: DefaultDaysInAdvance,
		Enabled:       true,
	}
}

// Validate checks channel and lead time.
func (p *NotificationPreference) Validate() error {
	if !p.Channel.IsValid() {
		return ErrInvalidChannel
	}
	if p.DaysInAdvance < MinDaysInAdvance || p.DaysInAdvance > MaxDaysInAdvance {
		return ErrInvalidDaysInAdvance
	}
	return nil
}
