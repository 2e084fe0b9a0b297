package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	users     map[string]*domain.User
	upserts   int
	upsertErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*domain.User)}
}

func (m *mockRepository) UpsertUser(_ context.Context, user *domain.User) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func TestEnsureUser_StoresProfile(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)

	p := domain.Principal{UserID: "uid-1", Email: "ana@example.com", DisplayName: "Ana", PhotoURL: "https://example.com/a.png"}
	require.NoError(t, service.EnsureUser(context.Background(), p))

	user := repo.users["uid-1"]
	require.NotNil(t, user)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.DisplayName)
	require.NotNil(t, user.PhotoURL)
	assert.Equal(t, "https://example.com/a.png", *user.PhotoURL)
}

func TestEnsureUser_SkipsUnchangedPrincipal(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	p := domain.Principal{UserID: "uid-1", Email: "ana@example.com"}

	require.NoError(t, service.EnsureUser(context.Background(), p))
	require.NoError(t, service.EnsureUser(context.Background(), p))
	assert.Equal(t, 1, repo.upserts)

	p.Email = "ana@new.example.com"
	require.NoError(t, service.EnsureUser(context.Background(), p))
	assert.Equal(t, 2, repo.upserts)
	assert.Equal(t, "ana@new.example.com", repo.users["uid-1"].Email)
}

func TestEnsureUser_ErrorIsNotCached(t *testing.T) {
	repo := newMockRepository()
	repo.upsertErr = errors.New("db down")
	service := NewService(repo)
	p := domain.Principal{UserID: "uid-1"}

	assert.Error(t, service.EnsureUser(context.Background(), p))

	repo.upsertErr = nil
	require.NoError(t, service.EnsureUser(context.Background(), p))
	assert.Equal(t, 1, repo.upserts)
}

func TestMe(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	p := domain.Principal{UserID: "uid-1", Email: "ana@example.com"}

	_, err := service.Me(context.Background(), p)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, service.EnsureUser(context.Background(), p))
	profile, err := service.Me(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, p, profile.Principal)
	assert.Equal(t, "uid-1", profile.User.ID)
}

func TestHandler_Me(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo)
	handler := NewHandler(service)
	p := domain.Principal{UserID: "uid-1", Email: "ana@example.com"}
	require.NoError(t, service.EnsureUser(context.Background(), p))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(httputil.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	handler.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data Profile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ana@example.com", body.Data.User.Email)

	rec = httptest.NewRecorder()
	handler.Me(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
