// Package identity keeps the stored profile of authenticated users.
package identity

import (
	"context"
	"errors"

	"github.com/bissquit/subtrack/internal/domain"
)

// ErrUserNotFound is returned when no profile is stored for a user id.
var ErrUserNotFound = errors.New("user not found")

// Repository defines the interface for user data access.
type Repository interface {
	// UpsertUser inserts the user or refreshes its profile fields.
	UpsertUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}
