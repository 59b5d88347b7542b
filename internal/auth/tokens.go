package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrInvalidToken covers malformed, mis-signed or incomplete tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrMissingAuthorization is returned when no bearer token is present.
	ErrMissingAuthorization = errors.New("missing or malformed authorization header")
)

// Identity is the verified caller extracted from a token.
type Identity struct {
	PlayerID string
	Nickname string
	IsAdmin  bool
}

type claims struct {
	Nickname string `json:"nickname"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Manager mints and verifies HS256 player tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewManager creates a token Manager. Tokens expire after ttl.
func NewManager(secret string, ttl time.Duration, clock clockwork.Clock) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// Mint issues a signed token for the player.
func (m *Manager) Mint(playerID, nickname string, isAdmin bool) (string, error) {
	now := m.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Nickname: nickname,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token for %s: %w", playerID, err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the caller identity.
func (m *Manager) Verify(tokenString string) (Identity, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&parsed,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if parsed.Subject == "" || parsed.Nickname == "" {
		return Identity{}, fmt.Errorf("%w: incomplete payload", ErrInvalidToken)
	}
	return Identity{
		PlayerID: parsed.Subject,
		Nickname: parsed.Nickname,
		IsAdmin:  parsed.IsAdmin,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authorization string) (string, error) {
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingAuthorization
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingAuthorization
	}
	return token, nil
}
