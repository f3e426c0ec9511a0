package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/pkg/idx"
	"github.com/quickqr/qrbot/pkg/jwtx"
)

// TokenService issues, validates and revokes signed session tokens. The
// signed payload is authoritative for identity and expiry; the kv registry
// exists only so tokens can be cut off before they expire. A token whose
// signature and expiry check out but whose registry entry is gone has been
// revoked.
type TokenService struct {
	Signer    jwtx.Signer
	Verifier  jwtx.Verifier
	KV        kv.Store
	Issuer    string
	AccessTTL time.Duration

	now func() time.Time // overridable in tests
}

func NewTokenService(tokens *jwtx.HS256, registry kv.Store, issuer string, accessTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	return &TokenService{
		Signer:    tokens,
		Verifier:  tokens,
		KV:        registry,
		Issuer:    issuer,
		AccessTTL: accessTTL,
		now:       time.Now,
	}
}

func registryKey(jti string) string { return "session:" + jti }

// Issue signs a session token for the user and registers it for revocation.
// Registration failure fails the issuance: a token that can never be revoked
// must not exist.
func (s *TokenService) Issue(ctx context.Context, user domain.User) (domain.Session, error) {
	now := s.now()
	jti := idx.New().String()

	claims := jwtx.NewSessionClaims(user.ID, jti, string(user.Role), user.Username, s.AccessTTL, s.Issuer, now)
	token, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.Session{}, err
	}

	if err := s.KV.SetWithTTL(ctx, registryKey(jti), user.ID, s.AccessTTL); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return domain.Session{
		Token:     token,
		TokenID:   jti,
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresIn: s.AccessTTL,
		ExpiresAt: now.Add(s.AccessTTL),
	}, nil
}

// Validate checks signature and expiry, then consults the registry. The
// registry lookup fails closed: if the kv store cannot answer, the token is
// not accepted.
func (s *TokenService) Validate(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, mapTokenError(err)
	}

	owner, err := s.KV.Get(ctx, registryKey(claims.ID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return jwtx.Claims{}, ErrTokenRevoked
		}
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// A registry entry naming a different user means the jti was reused
	// somehow; treat it the same as a revoked token.
	if owner != claims.Subject {
		return jwtx.Claims{}, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke removes the token from the registry. Revoking an already-revoked
// token succeeds; revoking a malformed or expired token reports why it could
// not be acted on.
func (s *TokenService) Revoke(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, mapTokenError(err)
	}

	if err := s.KV.Delete(ctx, registryKey(claims.ID)); err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return claims, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwtx.ErrNotYetValid):
		return ErrTokenExpired
	default:
		// Bad signature, wrong issuer and parse failures all collapse to
		// malformed; callers get no hint which check tripped.
		return ErrTokenMalformed
	}
}
