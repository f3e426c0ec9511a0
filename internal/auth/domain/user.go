package domain

import "time"

type User struct {
	ID           string
	Username     string // stored lowercase; uniqueness is case-insensitive
	PasswordHash string // argon2id PHC encoded
	Role         Role
	Active       bool

	// Lockout record, embedded per user. FailedLoginCount resets to zero on
	// any successful authentication; LockedUntil blocks attempts until it
	// passes and is only cleared lazily by the next attempt.
	FailedLoginCount int
	LockedUntil      *time.Time

	LastLoginAt *time.Time
	LoginCount  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the lockout window is still in effect at now.
// An elapsed LockedUntil means the user may attempt again even though the
// record has not been cleared yet.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
