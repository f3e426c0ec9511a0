package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the default session token lifetime. The chat-bot
// flow keeps users signed in for a day; override per-service via config.
const DefaultAccessTokenTTL = 24 * time.Hour

// Claims are the session-token claims used across the service. Keep changes
// additive to preserve compatibility with already-issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated user ("user" or "admin").
	Role string `json:"role,omitempty"`

	// Username for the authenticated user, mainly for display and logs.
	Username string `json:"username,omitempty"`
}

// NewSessionClaims builds minimally-correct claims for a session token. The
// jti is supplied by the caller so the revocation registry and the token
// share one identifier.
func NewSessionClaims(
	subject, jti, role, username string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Role:     role,
		Username: username,
	}
}

// ExpiresIn reports the remaining lifetime relative to now, floored at zero.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
