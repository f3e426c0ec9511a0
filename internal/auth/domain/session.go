package domain

import "time"

// Session is what a successful authentication returns: the signed bearer
// token plus the registry metadata the service tracked for it.
type Session struct {
	Token     string        `json:"token"`
	TokenID   string        `json:"-"` // jti; registry key, never sent to clients
	UserID    string        `json:"user_id"`
	Role      Role          `json:"role"`
	ExpiresIn time.Duration `json:"expires_in"` // seconds until expiry on the wire
	ExpiresAt time.Time     `json:"-"`
}
