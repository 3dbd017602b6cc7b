// Package auth validates bearer tokens issued for stock operators.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	appctx "stockflow/internal/core/context"
)

// RoleWrite lets an operator receive, remove and issue stock and undo.
// Any valid token may read.
const RoleWrite = "stock:write"

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	// Leeway tolerates clock drift between stockctl hosts and the server
	Leeway time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "stockflow",
		AccessTokenTTL: 15 * time.Minute,
		Leeway:         30 * time.Second,
	}
}

// Claims is the token payload: the registered claims plus the operator's
// display name and roles.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// IssuedToken is a signed token and its identity.
type IssuedToken struct {
	Token     string    `json:"token"`
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JWTService signs and validates HS256 operator tokens.
type JWTService struct {
	cfg JWTConfig
	now func() time.Time
}

// NewJWTService creates a JWT service; the secret is required.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	return &JWTService{cfg: cfg, now: time.Now}, nil
}

// WithClock replaces the time source used for issuing and validating.
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// Issue signs a token for op. The server never issues tokens itself;
// stockctl and tests use this to mint them.
func (s *JWTService) Issue(op appctx.Operator) (IssuedToken, error) {
	now := s.now()
	out := IssuedToken{
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        out.ID,
			Issuer:    s.cfg.Issuer,
			Subject:   op.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(out.ExpiresAt),
		},
		Name:  op.Name,
		Roles: slices.Compact(slices.Sorted(slices.Values(op.Roles))),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	out.Token = signed
	return out, nil
}

// ValidateToken checks signature, issuer and expiry and returns the
// operator the token names.
func (s *JWTService) ValidateToken(raw string) (*appctx.Operator, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &appctx.Operator{
		Subject: claims.Subject,
		Name:    claims.Name,
		Roles:   claims.Roles,
	}, nil
}
