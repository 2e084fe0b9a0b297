// Package token validates HS256 access tokens issued by the identity provider.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by the authenticator.
var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid token")
)

// Config contains token validation settings.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims are the access token claims. The subject is the user id.
type Claims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator implements httputil.TokenValidator.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewAuthenticator creates an authenticator for the given config.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// ValidateToken parses and verifies a token and returns its principal.
func (a *Authenticator) ValidateToken(_ context.Context, token string) (domain.Principal, error) {
	var claims Claims
	tok, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return domain.Principal{}, ErrInvalidToken
	}

	return domain.Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

// Issue signs a token for p valid for ttl. Used by tests and local tooling.
func (a *Authenticator) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:   p.Email,
		Name:    p.DisplayName,
		Picture: p.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
