package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/subtrack/internal/billing"
	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/export"
	"github.com/bissquit/subtrack/internal/pkg/ctxlog"
	"github.com/shopspring/decimal"
)

// Lifecycle event routing keys.
const (
	EventCreated = "subscription.created"
	EventUpdated = "subscription.updated"
	EventDeleted = "subscription.deleted"
)

// MaxScheduleCount bounds the number of dates returned by Schedule.
const MaxScheduleCount = 24

// View is a subscription enriched with derived values.
type View struct {
	domain.Subscription
	MonthlyEquivalent decimal.Decimal `json:"monthly_equivalent"`
	Schedule          []domain.Date   `json:"schedule,omitempty"`
}

// Summary is the dashboard view of a user's spending.
type Summary struct {
	TotalMonthlySpend decimal.Decimal           `json:"total_monthly_spend"`
	TotalYearlySpend  decimal.Decimal           `json:"total_yearly_spend"`
	SubscriptionCount int                       `json:"subscription_count"`
	UpcomingCount     int                       `json:"upcoming_count"`
	Categories        *billing.CategoryTotals   `json:"categories"`
	Warnings          []billing.ScheduleWarning `json:"warnings,omitempty"`
}

// Event is the payload of a lifecycle event.
type Event struct {
	Type         string               `json:"type"`
	OwnerID      string               `json:"owner_id"`
	Subscription *domain.Subscription `json:"subscription"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// Service provides subscription business logic.
type Service struct {
	repo   Repository
	events EventPublisher
	now    func() time.Time
}

// NewService creates a new subscriptions service. events may be nil.
func NewService(repo Repository, events EventPublisher) *Service {
	return &Service{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

func (s *Service) today() domain.Date {
	return domain.DateOf(s.now().UTC())
}

// Create stores a new subscription owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, sub domain.Subscription) (*domain.Subscription, error) {
	sub.ID = ""
	sub.OwnerID = ownerID
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.publish(ctx, EventCreated, &sub)
	return &sub, nil
}

// Get returns a subscription owned by ownerID. Records of other users are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != ownerID {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// View returns a subscription with its monthly equivalent and the next count payment dates.
func (s *Service) View(ctx context.Context, ownerID, id string, count int) (*View, error) {
	sub, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	view, err := newView(*sub)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		dates, err := billing.NextPaymentDates(sub.PaymentDate, sub.Cycle, count)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("failed to compute schedule", "subscription_id", sub.ID, "error", err)
		}
		view.Schedule = dates
	}
	return view, nil
}

// List returns all subscriptions of ownerID with their monthly equivalents.
func (s *Service) List(ctx context.Context, ownerID string) ([]View, error) {
	subs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(subs))
	for _, sub := range subs {
		v, err := newView(sub)
		if err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
		}
		views = append(views, *v)
	}
	return views, nil
}

// Update applies a partial update to a subscription owned by ownerID.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, ErrSubscriptionNotFound
	}

	updated, err := patch.Apply(*current)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.publish(ctx, EventUpdated, &updated)
	return &updated, nil
}

// Delete removes a subscription owned by ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.OwnerID != ownerID {
		return ErrSubscriptionNotFound
	}

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.publish(ctx, EventDeleted, sub)
	return nil
}

// Schedule returns the next count payment dates of a subscription, starting at its anchor.
func (s *Service) Schedule(ctx context.Context, ownerID, id string, count int) ([]domain.Date, error) {
	if count < 1 || count > MaxScheduleCount {
		return nil, billing.ErrInvalidCount
	}

	sub, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return billing.NextPaymentDates(sub.PaymentDate, sub.Cycle, count)
}

// Summary aggregates spending of ownerID.
func (s *Service) Summary(ctx context.Context, ownerID string) (*Summary, error) {
	subs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	totals, err := billing.AggregateByCategory(subs)
	if err != nil {
		return nil, err
	}

	monthly := totals.Total()
	upcoming := billing.Upcoming(subs, s.today(), billing.DefaultUpcomingWindow)

	return &Summary{
		TotalMonthlySpend: monthly,
		TotalYearlySpend:  monthly.Mul(decimal.NewFromInt(12)),
		SubscriptionCount: len(subs),
		UpcomingCount:     len(upcoming.Payments),
		Categories:        totals,
		Warnings:          upcoming.Warnings,
	}, nil
}

// Upcoming returns payments of ownerID due within the next windowDays days.
func (s *Service) Upcoming(ctx context.Context, ownerID string, windowDays int) (*billing.UpcomingReport, error) {
	subs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	report := billing.Upcoming(subs, s.today(), windowDays)
	for _, w := range report.Warnings {
		ctxlog.FromContext(ctx).Warn("subscription skipped in upcoming view",
			"subscription_id", w.SubscriptionID, "error", w.Err)
	}
	return &report, nil
}

// Export encodes all subscriptions of ownerID.
func (s *Service) Export(ctx context.Context, ownerID string, format export.Format) (*export.Artifact, error) {
	subs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	artifact, err := export.Encode(subs, format, s.now().UTC())
	if err != nil {
		return nil, err
	}

	exportedTotal.WithLabelValues(string(format)).Inc()
	return artifact, nil
}

// Import recreates subscriptions from a JSON export under ownerID. Ids, owners and
// timestamps from the file are discarded. Either all records are stored or none.
func (s *Service) Import(ctx context.Context, ownerID string, subs []domain.Subscription) ([]domain.Subscription, error) {
	if len(subs) == 0 {
		return nil, ErrEmptyImport
	}

	batch := make([]*domain.Subscription, 0, len(subs))
	for i := range subs {
		sub := subs[i]
		sub.ID = ""
		sub.OwnerID = ownerID
		sub.CreatedAt = time.Time{}
		sub.UpdatedAt = time.Time{}
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		batch = append(batch, &sub)
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("import subscriptions: %w", err)
	}

	created := make([]domain.Subscription, 0, len(batch))
	for _, sub := range batch {
		created = append(created, *sub)
		s.publish(ctx, EventCreated, sub)
	}
	return created, nil
}

func (s *Service) publish(ctx context.Context, eventType string, sub *domain.Subscription) {
	if s.events == nil {
		return
	}

	event := Event{
		Type:         eventType,
		OwnerID:      sub.OwnerID,
		Subscription: sub,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.events.Publish(ctx, eventType, event); err != nil {
		ctxlog.FromContext(ctx).Error("failed to publish subscription event",
			"event", eventType, "subscription_id", sub.ID, "error", err)
	}
}

func newView(sub domain.Subscription) (*View, error) {
	monthly, err := billing.MonthlyEquivalent(sub.Price, sub.Cycle)
	if err != nil {
		return nil, err
	}
	return &View{Subscription: sub, MonthlyEquivalent: monthly}, nil
}
