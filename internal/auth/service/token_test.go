package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/pkg/idx"
	"github.com/quickqr/qrbot/pkg/jwtx"
)

func newTestTokens(mem kv.Store) *TokenService {
	return NewTokenService(
		jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "qrbot-test", 0),
		mem, "qrbot-test", time.Hour,
	)
}

func testUser() domain.User {
	return domain.User{
		ID:       idx.New().String(),
		Username: "alice",
		Role:     domain.RoleUser,
		Active:   true,
	}
}

func TestTokenIssueAndValidate(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()
	u := testUser()

	session, err := ts.Issue(ctx, u)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.TokenID)

	claims, err := ts.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, session.TokenID, claims.ID)
}

func TestTokenValidateMalformed(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()

	_, err := ts.Validate(ctx, "not.a.token")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = ts.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenValidateTampered(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()

	session, err := ts.Issue(ctx, testUser())
	require.NoError(t, err)

	// Flip a character in the signature segment.
	tampered := session.Token[:len(session.Token)-2] + "xx"
	_, err = ts.Validate(ctx, tampered)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenValidateWrongSecret(t *testing.T) {
	mem := kv.NewMemory()
	ts := newTestTokens(mem)
	ctx := context.Background()

	session, err := ts.Issue(ctx, testUser())
	require.NoError(t, err)

	other := NewTokenService(
		jwtx.NewHS256([]byte("ffffffffffffffffffffffffffffffff"), "qrbot-test", 0),
		mem, "qrbot-test", time.Hour,
	)
	_, err = other.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenValidateExpired(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()

	// Issue in the past so the token is already beyond its lifetime.
	ts.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	session, err := ts.Issue(ctx, testUser())
	require.NoError(t, err)

	ts.now = time.Now
	_, err = ts.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenRevoke(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()
	u := testUser()

	session, err := ts.Issue(ctx, u)
	require.NoError(t, err)

	claims, err := ts.Revoke(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)

	_, err = ts.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Second revocation of the same token still succeeds.
	_, err = ts.Revoke(ctx, session.Token)
	assert.NoError(t, err)
}

func TestTokenRevokeDoesNotAffectOtherSessions(t *testing.T) {
	ts := newTestTokens(kv.NewMemory())
	ctx := context.Background()
	u := testUser()

	first, err := ts.Issue(ctx, u)
	require.NoError(t, err)
	second, err := ts.Issue(ctx, u)
	require.NoError(t, err)

	_, err = ts.Revoke(ctx, first.Token)
	require.NoError(t, err)

	_, err = ts.Validate(ctx, second.Token)
	assert.NoError(t, err, "revocation is per token, not per user")
}

func TestTokenValidateRegistryOwnerMismatch(t *testing.T) {
	mem := kv.NewMemory()
	ts := newTestTokens(mem)
	ctx := context.Background()

	session, err := ts.Issue(ctx, testUser())
	require.NoError(t, err)

	require.NoError(t, mem.SetWithTTL(ctx, "session:"+session.TokenID, "someone-else", time.Hour))
	_, err = ts.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestTokenIssueRegistryDownFails(t *testing.T) {
	ts := newTestTokens(brokenKV{})

	_, err := ts.Issue(context.Background(), testUser())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestTokenValidateRegistryDownFailsClosed(t *testing.T) {
	mem := kv.NewMemory()
	ts := newTestTokens(mem)
	ctx := context.Background()

	session, err := ts.Issue(ctx, testUser())
	require.NoError(t, err)

	ts.KV = brokenKV{}
	_, err = ts.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
