package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound     = errors.New("user_not_found")
	ErrInvalidPassword  = errors.New("invalid_password")
	ErrDuplicateUser    = errors.New("duplicate_user")
	ErrWeakPassword     = errors.New("weak_password")
	ErrAccountDisabled  = errors.New("account_disabled")
	ErrInvalidUsername  = errors.New("invalid_username")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrPermissionDenied = errors.New("permission_denied")

	ErrTokenMalformed = errors.New("token_malformed")
	ErrTokenExpired   = errors.New("token_expired")
	ErrTokenRevoked   = errors.New("token_revoked")

	// ErrStoreUnavailable means a backing store could not answer. Callers
	// treat it as a 503, never as a credential failure.
	ErrStoreUnavailable = errors.New("store_unavailable")
)

// AccountLockedError reports a temporarily locked account. RetryAfter is how
// long until the lock expires on its own.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account_locked: retry after %s", e.RetryAfter)
}

// RateLimitedError reports an exhausted fixed window for an action.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate_limit_exceeded: %s, retry after %s", e.Action, e.RetryAfter)
}
