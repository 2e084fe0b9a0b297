package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Deliver(t *testing.T) {
	msg := Message{Subject: "s", Body: "b"}

	tests := []struct {
		name       string
		prefs      []domain.NotificationPreference
		channel    domain.ChannelType
		wantErr    error
		wantTarget string
	}{
		{
			name:       "default email preference uses profile address",
			channel:    domain.ChannelTypeEmail,
			wantTarget: "owner@example.com",
		},
		{
			name:       "explicit email target wins",
			prefs:      []domain.NotificationPreference{{UserID: "user-1", Channel: domain.ChannelTypeEmail, DaysInAdvance: 3, Enabled: true, Target: "billing@example.com"}},
			channel:    domain.ChannelTypeEmail,
			wantTarget: "billing@example.com",
		},
		{
			name:    "disabled preference",
			prefs:   []domain.NotificationPreference{{UserID: "user-1", Channel: domain.ChannelTypeEmail, DaysInAdvance: 3, Enabled: false}},
			channel: domain.ChannelTypeEmail,
			wantErr: ErrPreferenceDisabled,
		},
		{
			name:       "telegram target",
			prefs:      []domain.NotificationPreference{{UserID: "user-1", Channel: domain.ChannelTypeTelegram, DaysInAdvance: 3, Enabled: true, Target: "42"}},
			channel:    domain.ChannelTypeTelegram,
			wantTarget: "42",
		},
		{
			name:    "telegram without preference",
			channel: domain.ChannelTypeTelegram,
			wantErr: ErrPreferenceNotFound,
		},
		{
			name:    "no sender",
			channel: domain.ChannelTypePush,
			wantErr: ErrChannelDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			for _, p := range tt.prefs {
				require.NoError(t, repo.UpsertPreference(context.Background(), &p))
			}
			email := &mockSender{channel: domain.ChannelTypeEmail}
			telegram := &mockSender{channel: domain.ChannelTypeTelegram}
			users := &mockUsers{users: map[string]*domain.User{"user-1": {ID: "user-1", Email: "owner@example.com"}}}
			d := NewDispatcher(repo, users, email, telegram)

			err := d.Deliver(context.Background(), "user-1", msg, tt.channel)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			sent := append(email.sent, telegram.sent...)
			require.Len(t, sent, 1)
			assert.Equal(t, Notification{To: tt.wantTarget, Subject: "s", Body: "b"}, sent[0])
		})
	}
}

func TestDispatcher_Deliver_NoEmailAnywhere(t *testing.T) {
	repo := newMockRepository()
	users := &mockUsers{users: map[string]*domain.User{"user-1": {ID: "user-1"}}}
	d := NewDispatcher(repo, users, &mockSender{channel: domain.ChannelTypeEmail})

	err := d.Deliver(context.Background(), "user-1", Message{}, domain.ChannelTypeEmail)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestDispatcher_Dispatch_RecordsOutcome(t *testing.T) {
	repo := newMockRepository()
	users := &mockUsers{users: map[string]*domain.User{"user-1": {ID: "user-1", Email: "owner@example.com"}}}
	sender := &mockSender{channel: domain.ChannelTypeEmail}
	d := NewDispatcher(repo, users, sender)

	item, err := d.Dispatch(context.Background(), "user-1", Message{Subject: "hi", Body: "there"}, domain.ChannelTypeEmail, MessageKindTest)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusSent, item.Status)
	assert.NotNil(t, item.SentAt)
	assert.NotEmpty(t, item.ID)

	sender.err = errors.New("smtp down")
	item, err = d.Dispatch(context.Background(), "user-1", Message{Subject: "hi"}, domain.ChannelTypeEmail, MessageKindTest)
	require.Error(t, err)
	require.NotNil(t, item)
	assert.Equal(t, QueueStatusFailed, item.Status)
	require.NotNil(t, item.LastError)
	assert.Equal(t, "smtp down", *item.LastError)

	logged, err := repo.ListUserNotifications(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}
