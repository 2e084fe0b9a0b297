package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/pkg/ctxlog"
)

type principalKey struct{}

// TokenValidator verifies a bearer token issued by the identity provider.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (domain.Principal, error)
}

// PrincipalHook runs after a token is accepted, e.g. to upsert the user profile.
// A failing hook rejects the request with 500.
type PrincipalHook func(ctx context.Context, p domain.Principal) error

// AuthMiddleware rejects requests without a valid bearer token and stores the
// authenticated principal in the request context.
func AuthMiddleware(validator TokenValidator, hooks ...PrincipalHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				Error(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			principal, err := validator.ValidateToken(r.Context(), strings.TrimSpace(token))
			if err != nil || principal.UserID == "" {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = ctxlog.With(ctx, "user_id", principal.UserID)
			for _, hook := range hooks {
				if err := hook(ctx, principal); err != nil {
					HandleError(ctx, w, err, nil)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal extracts the authenticated principal from context.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// GetUserID extracts user ID from context.
func GetUserID(ctx context.Context) string {
	if p, ok := GetPrincipal(ctx); ok {
		return p.UserID
	}
	return ""
}
