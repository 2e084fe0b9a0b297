package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/google/uuid"
)

type mockRepository struct {
	mu          sync.Mutex
	prefs       map[string]domain.NotificationPreference
	users       []string
	items       []*QueueItem
	keys        map[string]bool
	enqueueErr  error
	markedSent  []string
	markedFail  map[string]error
	markedRetry map[string]time.Time
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		prefs:       make(map[string]domain.NotificationPreference),
		keys:        make(map[string]bool),
		markedFail:  make(map[string]error),
		markedRetry: make(map[string]time.Time),
	}
}

func prefKey(userID string, channel domain.ChannelType) string {
	return userID + "/" + string(channel)
}

func (m *mockRepository) ListPreferences(_ context.Context, userID string) ([]domain.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefs := make([]domain.NotificationPreference, 0)
	for _, p := range m.prefs {
		if p.UserID == userID {
			prefs = append(prefs, p)
		}
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Channel < prefs[j].Channel })
	return prefs, nil
}

func (m *mockRepository) GetPreference(_ context.Context, userID string, channel domain.ChannelType) (*domain.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[prefKey(userID, channel)]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return &p, nil
}

func (m *mockRepository) UpsertPreference(_ context.Context, pref *domain.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pref.ID == "" {
		pref.ID = uuid.NewString()
	}
	m.prefs[prefKey(pref.UserID, pref.Channel)] = *pref
	return nil
}

func (m *mockRepository) DeletePreference(_ context.Context, userID string, channel domain.ChannelType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := prefKey(userID, channel)
	if _, ok := m.prefs[key]; !ok {
		return ErrPreferenceNotFound
	}
	delete(m.prefs, key)
	return nil
}

func (m *mockRepository) ListEnabledPreferences(_ context.Context) ([]domain.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prefs []domain.NotificationPreference
	configured := make(map[string]bool)
	for _, p := range m.prefs {
		configured[p.UserID] = true
		if p.Enabled {
			prefs = append(prefs, p)
		}
	}
	for _, u := range m.users {
		if !configured[u] {
			prefs = append(prefs, domain.DefaultNotificationPreference(u))
		}
	}
	sort.Slice(prefs, func(i, j int) bool {
		if prefs[i].UserID != prefs[j].UserID {
			return prefs[i].UserID < prefs[j].UserID
		}
		return prefs[i].Channel < prefs[j].Channel
	})
	return prefs, nil
}

func (m *mockRepository) EnqueueNotification(_ context.Context, item *QueueItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return false, m.enqueueErr
	}
	if item.DedupKey != nil {
		if m.keys[*item.DedupKey] {
			return false, nil
		}
		m.keys[*item.DedupKey] = true
	}
	item.ID = uuid.NewString()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	m.items = append(m.items, item)
	return true, nil
}

func (m *mockRepository) FetchPendingNotifications(_ context.Context, limit int) ([]*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*QueueItem
	for _, it := range m.items {
		if it.Status == QueueStatusPending && !it.NextAttemptAt.After(time.Now()) && len(out) < limit {
			it.Status = QueueStatusProcessing
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockRepository) find(id string) *QueueItem {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *mockRepository) MarkAsSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedSent = append(m.markedSent, id)
	if it := m.find(id); it != nil {
		it.Status = QueueStatusSent
		it.Attempts++
	}
	return nil
}

func (m *mockRepository) MarkAsFailed(_ context.Context, id string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedFail[id] = err
	if it := m.find(id); it != nil {
		it.Status = QueueStatusFailed
		it.Attempts++
	}
	return nil
}

func (m *mockRepository) MarkForRetry(_ context.Context, id string, _ error, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedRetry[id] = next
	if it := m.find(id); it != nil {
		it.Status = QueueStatusPending
		it.Attempts++
		it.NextAttemptAt = next
	}
	return nil
}

func (m *mockRepository) GetQueueStats(_ context.Context) (*QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats QueueStats
	for _, it := range m.items {
		switch it.Status {
		case QueueStatusPending:
			stats.Pending++
		case QueueStatusProcessing:
			stats.Processing++
		case QueueStatusSent:
			stats.Sent++
		case QueueStatusFailed:
			stats.Failed++
		}
	}
	return &stats, nil
}

func (m *mockRepository) ListUserNotifications(_ context.Context, userID string, limit int) ([]QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueueItem, 0)
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].UserID == userID {
			out = append(out, *m.items[i])
		}
	}
	return out, nil
}

func (m *mockRepository) DeleteOldSentItems(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type mockSender struct {
	channel domain.ChannelType
	err     error
	sent    []Notification
}

func (s *mockSender) Type() domain.ChannelType { return s.channel }

func (s *mockSender) Send(_ context.Context, n Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

type mockUsers struct {
	users map[string]*domain.User
}

func (m *mockUsers) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

type mockSubscriptions struct {
	subs map[string][]domain.Subscription
	err  error
}

func (m *mockSubscriptions) ListByOwner(_ context.Context, ownerID string) ([]domain.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.subs[ownerID], nil
}
