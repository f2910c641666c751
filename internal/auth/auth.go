// Package auth issues and verifies the bearer tokens used by the REST API and
// the realtime endpoint.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed
	// with the wrong key.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)

// Claims are the JWT claims carried by an infrawatch token.
type Claims struct {
	jwt.RegisteredClaims
	TeamID string `json:"team_id,omitempty"`
}

// Config configures a Tokens instance.
type Config struct {
	Secret   []byte // HMAC key, at least 32 bytes
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

// NewTokens returns a Tokens using cfg.
func NewTokens(cfg Config) (*Tokens, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("auth secret must be at least 32 bytes, got %d", len(cfg.Secret))
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("auth token ttl must be positive")
	}
	return &Tokens{cfg: cfg, now: time.Now}, nil
}

// Issue signs a token for subject, optionally scoped to teamID.
func (t *Tokens) Issue(subject, teamID string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}

	now := t.now().UTC()
	expiresAt := now.Add(t.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    t.cfg.Issuer,
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TeamID: teamID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses tokenString and checks signature, expiry, issuer and
// audience. Every failure is reported as ErrInvalidToken.
func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
