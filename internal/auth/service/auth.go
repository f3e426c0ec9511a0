package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/pkg/cryptox"
	"github.com/quickqr/qrbot/pkg/idx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 32

	// DefaultLockoutThreshold failures in a row lock the account for
	// DefaultLockoutDuration. Overridable via config.
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// dummyHash is verified against when the username does not exist, so the
// response time of a bad-username attempt matches a bad-password attempt.
// No submitted password can ever match it: the hash is of a random 256-bit
// value discarded immediately. Built lazily so hashing parameters and the
// pepper are configured before first use.
var dummyHash = sync.OnceValue(func() string {
	random, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		panic(err)
	}
	hash, err := cryptox.HashPassword(random)
	if err != nil {
		panic(err)
	}
	return hash
})

// AuthService is the credential and session front door: account creation,
// authentication with lockout, token lifecycle and password changes.
type AuthService struct {
	Store   store.Store
	Tokens  *TokenService
	Limiter *RateLimiter
	Audit   *Auditor

	Policy           cryptox.Policy
	LockoutThreshold int
	LockoutDuration  time.Duration

	now func() time.Time // overridable in tests
}

func NewAuthService(
	st store.Store,
	tokens *TokenService,
	limiter *RateLimiter,
	audit *Auditor,
) *AuthService {
	return &AuthService{
		Store:            st,
		Tokens:           tokens,
		Limiter:          limiter,
		Audit:            audit,
		Policy:           cryptox.DefaultPolicy,
		LockoutThreshold: DefaultLockoutThreshold,
		LockoutDuration:  DefaultLockoutDuration,
		now:              time.Now,
	}
}

// Identity is the authenticated caller attached to a request after token
// validation.
type Identity struct {
	UserID   string
	Username string
	Role     domain.Role
	TokenID  string
}

// NormalizeUsername lowercases and trims a submitted username. All lookups
// and storage go through this, which is what makes usernames
// case-insensitively unique.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidUsername, usernameMinLength, usernameMaxLength)
	}
	for _, c := range username {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return fmt.Errorf("%w: only a-z, 0-9, _ and - are allowed", ErrInvalidUsername)
		}
	}
	return nil
}

// CreateAccount registers a new user. The username race is settled by the
// store's unique index, not by a read-then-write check.
func (s *AuthService) CreateAccount(
	ctx context.Context,
	username, password string,
	role domain.Role,
) (domain.User, error) {
	username = NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return domain.User{}, err
	}
	if !role.Valid() {
		return domain.User{}, ErrInvalidRole
	}
	if err := s.Policy.Check(password); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUser
		}
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("account created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role.String()),
	)
	return user, nil
}

// Authenticate verifies a username/password pair and returns a fresh
// session. Every failure path costs one rate-limit unit and one lockout
// counter bump, and every outcome leaves a security event.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (domain.Session, error) {
	username = NormalizeUsername(username)
	now := s.now()

	if err := s.Limiter.Allow(ctx, username, ActionLogin); err != nil {
		var limited *RateLimitedError
		if errors.As(err, &limited) {
			s.Audit.Record(ctx, domain.EventRateLimitExceeded, username, domain.SeverityWarning,
				map[string]any{"action": ActionLogin})
		}
		return domain.Session{}, err
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same hashing work a real verification would, so
			// unknown usernames are not distinguishable by latency.
			_ = cryptox.VerifyPassword(password, dummyHash())
			s.Audit.Record(ctx, domain.EventLoginFailure, username, domain.SeverityInfo,
				map[string]any{"reason": "unknown_user"})
			return domain.Session{}, ErrUserNotFound
		}
		return domain.Session{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !user.Active {
		s.Audit.Record(ctx, domain.EventLoginFailure, user.ID, domain.SeverityWarning,
			map[string]any{"reason": "account_disabled"})
		return domain.Session{}, ErrAccountDisabled
	}

	if user.Locked(now) {
		s.Audit.Record(ctx, domain.EventLoginFailure, user.ID, domain.SeverityWarning,
			map[string]any{"reason": "account_locked"})
		return domain.Session{}, &AccountLockedError{RetryAfter: user.LockedUntil.Sub(now)}
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.Session{}, s.recordFailure(ctx, user, now)
	}

	if err := s.Store.Users().RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.maybeRehash(ctx, user.ID, password, user.PasswordHash)

	session, err := s.Tokens.Issue(ctx, user)
	if err != nil {
		return domain.Session{}, err
	}

	s.Audit.Record(ctx, domain.EventLoginSuccess, user.ID, domain.SeverityInfo, nil)
	s.Audit.Record(ctx, domain.EventTokenIssued, user.ID, domain.SeverityInfo,
		map[string]any{"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339)})
	return session, nil
}

// recordFailure bumps the failure counter and reports the outcome. The bump
// happens in the store in one statement, so the threshold is crossed exactly
// once no matter how many attempts race. The attempt that crosses it still
// gets the invalid-password answer; only attempts arriving after the lock is
// in place see the lockout.
func (s *AuthService) recordFailure(ctx context.Context, user domain.User, now time.Time) error {
	updated, err := s.Store.Users().RecordLoginFailure(
		ctx, user.ID, s.LockoutThreshold, s.LockoutDuration, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.Audit.Record(ctx, domain.EventLoginFailure, user.ID, domain.SeverityInfo,
		map[string]any{"failed_count": updated.FailedLoginCount})

	// Gate on the count returned by the atomic update, never on the row
	// snapshot: racing attempts share the snapshot, but exactly one of them
	// gets the count that equals the threshold. Failures after an expired
	// lock restart the count at 1, so a later re-lock crosses the threshold
	// again and gets its own event.
	if updated.FailedLoginCount == s.LockoutThreshold && updated.LockedUntil != nil {
		s.Audit.Record(ctx, domain.EventLockoutTriggered, user.ID, domain.SeverityCritical,
			map[string]any{
				"failed_count": updated.FailedLoginCount,
				"locked_until": updated.LockedUntil.UTC().Format(time.RFC3339),
			})
		slogx.FromContext(ctx).Warn("account locked after repeated failures",
			slog.String("user_id", user.ID),
			slog.Int("failed_count", updated.FailedLoginCount),
		)
	}

	return ErrInvalidPassword
}

// maybeRehash upgrades the stored hash when cost parameters have been raised
// since it was created. Best effort: a failure only means the old hash
// sticks around until the next login.
func (s *AuthService) maybeRehash(ctx context.Context, userID, password, currentHash string) {
	if !cryptox.NeedsRehash(currentHash) {
		return
	}
	newHash, err := cryptox.HashPassword(password)
	if err == nil {
		err = s.Store.Users().UpdatePasswordHash(ctx, userID, newHash)
	}
	if err != nil {
		slogx.FromContext(ctx).Warn("password rehash failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return
	}
	slogx.FromContext(ctx).Info("password hash upgraded", slog.String("user_id", userID))
}

// Authorize resolves a bearer token to the caller's identity. The user row
// is consulted on every request so deactivation takes effect immediately,
// not at token expiry.
func (s *AuthService) Authorize(ctx context.Context, token string) (Identity, error) {
	claims, err := s.Tokens.Validate(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrTokenRevoked
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		return Identity{}, ErrAccountDisabled
	}

	return Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		TokenID:  claims.ID,
	}, nil
}

// CheckRateLimit spends one unit of the subject's quota for an action. Other
// surfaces (bot commands, QR generation) call this with the authenticated
// user id so their quotas are shared across instances.
func (s *AuthService) CheckRateLimit(ctx context.Context, subject, action string) error {
	return s.Limiter.Allow(ctx, subject, action)
}

// Logout revokes the presented token. Idempotent: revoking twice succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.Tokens.Revoke(ctx, token)
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, domain.EventTokenRevoked, claims.Subject, domain.SeverityInfo, nil)
	return nil
}

// ChangePassword swaps the password after re-verifying the current one. The
// caller's existing sessions stay valid; only the credential changes.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidPassword
	}
	if err := s.Policy.Check(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("user_id", userID))
	return nil
}
