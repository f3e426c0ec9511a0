package store

import (
	"context"
	"time"

	"errors"

	"github.com/quickqr/qrbot/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	SecurityEvents() SecurityEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Prefer this
	// over Tx for multi-step writes.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername looks up by the canonical (lowercased) username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateRole changes the user's role and bumps updated_at.
	UpdateRole(ctx context.Context, userID string, role domain.Role) error

	// SetActive activates or deactivates the account. Deactivated users
	// cannot authenticate but their history is kept.
	SetActive(ctx context.Context, userID string, active bool) error

	// RecordLoginFailure bumps failed_login_count by one and, when the
	// new count reaches threshold, sets locked_until to now+lockFor. The
	// increment, the compare and the lock are a single statement so
	// concurrent failures cannot race past the threshold. Returns the
	// updated user.
	RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration, now time.Time) (domain.User, error)

	// RecordLoginSuccess clears failed_login_count and locked_until,
	// stamps last_login_at and bumps login_count.
	RecordLoginSuccess(ctx context.Context, userID string, now time.Time) error

	// ClearLock resets failed_login_count and locked_until without
	// touching login stats. Used by the admin unlock path.
	ClearLock(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

// EventFilter narrows ListEvents. Zero values mean "no constraint".
type EventFilter struct {
	Subject  string
	Type     domain.EventType
	Severity domain.Severity
	Since    time.Time
	Limit    int
}

type SecurityEvents interface {
	// CreateEvent appends an immutable audit record.
	CreateEvent(ctx context.Context, ev domain.SecurityEvent) error

	// ListEvents returns events matching the filter, newest first.
	ListEvents(ctx context.Context, f EventFilter) ([]domain.SecurityEvent, error)

	// CountEventsSince counts events of a given type for a subject since a
	// point in time. Used by the security reporting endpoints.
	CountEventsSince(ctx context.Context, subject string, t domain.EventType, since time.Time) (int64, error)

	// DeleteEventsBefore prunes records older than the cutoff and returns
	// how many were removed. Retention housekeeping only.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
