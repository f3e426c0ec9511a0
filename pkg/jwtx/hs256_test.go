package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testIssuer = "qrbot-auth-test"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestHS256_SignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	h := NewHS256(testSecret, testIssuer, 0)
	now := time.Now().UTC()

	claims := NewSessionClaims("user-1", "jti-1", "admin", "alice", time.Hour, testIssuer, now)

	raw, err := h.Sign(claims)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(raw, ".")), "compact JWT has three segments")

	got, err := h.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "jti-1", got.ID)
	require.Equal(t, "admin", got.Role)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, testIssuer, got.Issuer)
	require.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt.Time, time.Second)
}

func TestHS256_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	h := NewHS256(testSecret, testIssuer, 0)
	past := time.Now().UTC().Add(-2 * time.Hour)

	claims := NewSessionClaims("user-1", "jti-2", "user", "bob", time.Hour, testIssuer, past)
	raw, err := h.Sign(claims)
	require.NoError(t, err)

	_, err = h.Verify(raw)
	require.ErrorIs(t, err, ErrExpired)
}

func TestHS256_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	signer := NewHS256(testSecret, testIssuer, 0)
	verifier := NewHS256([]byte("another-secret-another-secret-xx"), testIssuer, 0)

	raw, err := signer.Sign(NewSessionClaims("user-1", "jti-3", "user", "bob", time.Hour, testIssuer, time.Now().UTC()))
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidSig)
}

func TestHS256_RejectsGarbage(t *testing.T) {
	t.Parallel()

	h := NewHS256(testSecret, testIssuer, 0)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d", "aGVhZA.Ym9keQ.c2ln"} {
		_, err := h.Verify(raw)
		require.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestHS256_RejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	signer := NewHS256(testSecret, "other-issuer", 0)
	verifier := NewHS256(testSecret, testIssuer, 0)

	raw, err := signer.Sign(NewSessionClaims("user-1", "jti-4", "user", "bob", time.Hour, "other-issuer", time.Now().UTC()))
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestHS256_LeewayAbsorbsClockSkew(t *testing.T) {
	t.Parallel()

	strict := NewHS256(testSecret, testIssuer, 0)
	lenient := NewHS256(testSecret, testIssuer, time.Minute)

	// Expired thirty seconds ago: inside leeway, outside strict.
	start := time.Now().UTC().Add(-time.Hour - 30*time.Second)
	raw, err := strict.Sign(NewSessionClaims("user-1", "jti-5", "user", "bob", time.Hour, testIssuer, start))
	require.NoError(t, err)

	_, err = strict.Verify(raw)
	require.ErrorIs(t, err, ErrExpired)

	_, err = lenient.Verify(raw)
	require.NoError(t, err)
}

func TestClaims_ExpiresIn(t *testing.T) {
	t.Parallel()

	// jwt.NewNumericDate keeps whole seconds, so work from a truncated clock.
	now := time.Now().UTC().Truncate(time.Second)
	claims := NewSessionClaims("user-1", "jti-6", "user", "bob", time.Hour, testIssuer, now)

	require.Equal(t, time.Hour, claims.ExpiresIn(now))
	require.Equal(t, time.Duration(0), claims.ExpiresIn(now.Add(2*time.Hour)))
}
