package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/retail/ledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier() *TokenVerifier {
	return NewTokenVerifier(config.AuthConfig{
		JWTSecret: "test-secret-key-at-least-32-chars",
		JWTIssuer: "retail-identity",
	})
}

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier()
	tenantID, userID := uuid.New(), uuid.New()

	token, err := v.Issue(tenantID, userID, 15*time.Minute)
	require.NoError(t, err)

	gotTenant, gotUser, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, userID, gotUser)
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := newTestVerifier()
	tenantID, userID := uuid.New(), uuid.New()

	t.Run("expired token", func(t *testing.T) {
		token, err := v.Issue(tenantID, userID, time.Minute)
		require.NoError(t, err)

		later := *v
		later.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, _, err = later.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("token not yet valid", func(t *testing.T) {
		early := *v
		early.now = func() time.Time { return time.Now().Add(time.Hour) }
		token, err := early.Issue(tenantID, userID, 2*time.Hour)
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrTokenNotYetValid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenVerifier(config.AuthConfig{JWTSecret: "another-secret-key-at-least-32-chars", JWTIssuer: "retail-identity"})
		token, err := other.Issue(tenantID, userID, time.Minute)
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenVerifier(config.AuthConfig{JWTSecret: "test-secret-key-at-least-32-chars", JWTIssuer: "someone-else"})
		token, err := other.Issue(tenantID, userID, time.Minute)
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{TenantID: tenantID.String(), UserID: userID.String()}).
			SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing tenant", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "retail-identity"},
			UserID:           userID.String(),
		}).SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrMissingTenantID)
	})

	t.Run("malformed tenant", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "retail-identity"},
			TenantID:         "not-a-uuid",
			UserID:           userID.String(),
		}).SignedString([]byte("test-secret-key-at-least-32-chars"))
		require.NoError(t, err)

		_, _, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := v.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
