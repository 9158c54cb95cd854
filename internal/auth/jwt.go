// Package auth verifies bearer tokens and places the caller's actor on the
// request context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	// ErrInvalidToken is returned when the token is malformed or badly signed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the application user and role.
type Claims struct {
	Role shared.Role `json:"role"`
	jwt.RegisteredClaims
}

// Config holds token settings.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

// NewTokens constructs a token manager.
func NewTokens(cfg Config) *Tokens {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Tokens{cfg: cfg, now: time.Now}
}

// Issue signs a token for actor. Used by operator tooling and tests.
func (t *Tokens) Issue(actor shared.Actor) (string, error) {
	now := t.now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   actor.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
}

// Verify parses raw and returns the actor it names.
func (t *Tokens) Verify(raw string) (shared.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(t.now)}
	if t.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(t.cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return shared.Actor{}, ErrExpiredToken
		}
		return shared.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return shared.Actor{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	switch claims.Role {
	case shared.RoleAdmin, shared.RoleCustomer:
	default:
		return shared.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return shared.Actor{UserID: userID, Role: claims.Role}, nil
}
