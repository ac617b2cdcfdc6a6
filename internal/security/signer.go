package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-saas-auth/internal/model"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies the access/refresh pair. Each token kind has
// its own secret so an access token never verifies as a refresh token.
type TokenSigner struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type SignerOption func(*TokenSigner)

func WithClock(now func() time.Time) SignerOption {
	return func(s *TokenSigner) {
		s.now = now
	}
}

func NewTokenSigner(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration, opts ...SignerOption) (*TokenSigner, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	s := &TokenSigner{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *TokenSigner) Issue(identity model.Identity) (model.TokenPair, error) {
	now := s.now().UTC()

	access, err := s.sign(identity, tokenTypeAccess, s.accessSecret, now, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.sign(identity, tokenTypeRefresh, s.refreshSecret, now, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenSigner) VerifyAccess(token string) (model.Identity, error) {
	return s.verify(token, tokenTypeAccess, s.accessSecret)
}

func (s *TokenSigner) VerifyRefresh(token string) (model.Identity, error) {
	return s.verify(token, tokenTypeRefresh, s.refreshSecret)
}

func (s *TokenSigner) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenSigner) sign(identity model.Identity, typ string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		UserID: identity.UserID,
		Email:  identity.Email,
		Role:   identity.Role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *TokenSigner) verify(token string, typ string, secret []byte) (model.Identity, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return model.Identity{}, ErrInvalidToken
	}

	if claims.Type != typ || claims.UserID == "" {
		return model.Identity{}, ErrInvalidToken
	}

	return model.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}
