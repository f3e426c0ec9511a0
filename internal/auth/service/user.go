package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/pkg/slogx"
)

// UserAdminService covers the operator actions on accounts: role changes,
// deactivation and manual unlock.
type UserAdminService struct {
	Store store.Store
	Audit *Auditor
}

func (s *UserAdminService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

func (s *UserAdminService) SetRole(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if err := s.Store.Users().UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slogx.FromContext(ctx).Info("user role changed",
		slog.String("user_id", userID),
		slog.String("role", role.String()),
	)
	return nil
}

// Deactivate disables an account. Outstanding tokens fail authorization on
// their next use because Authorize re-reads the user row.
func (s *UserAdminService) Deactivate(ctx context.Context, userID string) error {
	if err := s.Store.Users().SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.Audit.Record(ctx, domain.EventTokenRevoked, userID, domain.SeverityWarning,
		map[string]any{"reason": "account_deactivated"})
	slogx.FromContext(ctx).Info("user deactivated", slog.String("user_id", userID))
	return nil
}

func (s *UserAdminService) Reactivate(ctx context.Context, userID string) error {
	if err := s.Store.Users().SetActive(ctx, userID, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slogx.FromContext(ctx).Info("user reactivated", slog.String("user_id", userID))
	return nil
}

// Unlock clears an active lockout without waiting for it to expire.
func (s *UserAdminService) Unlock(ctx context.Context, userID string) error {
	if err := s.Store.Users().ClearLock(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	slogx.FromContext(ctx).Info("account lock cleared", slog.String("user_id", userID))
	return nil
}
