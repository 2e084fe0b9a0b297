// Package subscriptions provides owner-scoped subscription management and the
// spending, schedule and export views built on top of it.
package subscriptions

import (
	"context"

	"github.com/bissquit/subtrack/internal/domain"
)

// Repository defines the interface for subscription data access.
type Repository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	CreateBatch(ctx context.Context, subs []*domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	// Update writes the mutable fields; the row must belong to sub.OwnerID.
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, ownerID, id string) error
}

// EventPublisher publishes subscription lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
