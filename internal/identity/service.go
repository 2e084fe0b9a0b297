package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/bissquit/subtrack/internal/domain"
)

// Profile is the response of GET /me.
type Profile struct {
	Principal domain.Principal `json:"principal"`
	User      *domain.User     `json:"user"`
}

// Service provides identity business logic.
type Service struct {
	repo Repository

	mu   sync.RWMutex
	seen map[string]domain.Principal
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		seen: make(map[string]domain.Principal),
	}
}

// EnsureUser stores the principal's profile. The write is skipped when the same
// principal was already stored by this process.
func (s *Service) EnsureUser(ctx context.Context, p domain.Principal) error {
	s.mu.RLock()
	prev, ok := s.seen[p.UserID]
	s.mu.RUnlock()
	if ok && prev == p {
		return nil
	}

	user := userFromPrincipal(p)
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("upsert user %s: %w", p.UserID, err)
	}

	s.mu.Lock()
	s.seen[p.UserID] = p
	s.mu.Unlock()
	return nil
}

// Me returns the principal together with its stored profile.
func (s *Service) Me(ctx context.Context, p domain.Principal) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &Profile{Principal: p, User: user}, nil
}

// GetUser returns the stored profile of a user.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func userFromPrincipal(p domain.Principal) *domain.User {
	user := &domain.User{
		ID:          p.UserID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
	}
	if p.PhotoURL != "" {
		photo := p.PhotoURL
		user.PhotoURL = &photo
	}
	return user
}
