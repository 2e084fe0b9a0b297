// Package postgres provides PostgreSQL implementation of subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/subscriptions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `id, owner_id, name, price, cycle, category, payment_date, notes, logo, created_at, updated_at`

const insertQuery = `
	INSERT INTO subscriptions (owner_id, name, price, cycle, category, payment_date, notes, logo)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at, updated_at
`

// Repository implements subscriptions.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a subscription and fills its generated fields.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	err := r.db.QueryRow(ctx, insertQuery, insertArgs(sub)...).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// CreateBatch inserts all subscriptions in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, subs []*domain.Subscription) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i, sub := range subs {
		err := tx.QueryRow(ctx, insertQuery, insertArgs(sub)...).
			Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert subscription %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + selectColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListByOwner returns all subscriptions of a user in creation order.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `SELECT ` + selectColumns + ` FROM subscriptions WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

// Update writes the mutable fields of a subscription owned by sub.OwnerID.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET name = $3, price = $4, cycle = $5, category = $6, payment_date = $7, notes = $8, logo = $9, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.OwnerID,
		sub.Name,
		sub.Price,
		sub.Cycle,
		sub.Category,
		sub.PaymentDate.Time,
		sub.Notes,
		sub.Logo,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrSubscriptionNotFound
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription owned by ownerID.
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM subscriptions WHERE id = $1 AND owner_id = $2`
	result, err := r.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

func insertArgs(sub *domain.Subscription) []any {
	return []any{
		sub.OwnerID,
		sub.Name,
		sub.Price,
		sub.Cycle,
		sub.Category,
		sub.PaymentDate.Time,
		sub.Notes,
		sub.Logo,
	}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.OwnerID,
		&sub.Name,
		&sub.Price,
		&sub.Cycle,
		&sub.Category,
		&sub.PaymentDate.Time,
		&sub.Notes,
		&sub.Logo,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
