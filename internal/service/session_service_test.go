package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmember/clubmember/internal/config"
	"github.com/clubmember/clubmember/internal/store"
)

func newJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(&config.JWTConfig{
		SecretKey:     "0123456789abcdef0123456789abcdef",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
	}, quietLogger())
	require.NoError(t, err)
	return svc
}

func TestGeneratePairAndVerify(t *testing.T) {
	svc := newJWTService(t)

	pair, err := svc.GeneratePair(testPhone)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.EqualValues(t, 900, pair.ExpiresIn)

	access, err := svc.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access", access.Type)
	assert.Equal(t, testPhone, access.Phone)

	refresh, err := svc.VerifyToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refresh.Type)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newJWTService(t)

	pair, err := svc.GeneratePair(testPhone)
	require.NoError(t, err)

	_, err = svc.VerifyToken(pair.AccessToken + "x")
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	sessions := NewSessionService(store.NewMemoryStore(), quietLogger())
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	require.NoError(t, sessions.Store(ctx, "jti-1", testPhone, expiresAt))

	data, err := sessions.Get(ctx, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, testPhone, data.Phone)

	revoked, err := sessions.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, sessions.Revoke(ctx, "jti-1", expiresAt))

	data, err = sessions.Get(ctx, "jti-1")
	require.NoError(t, err)
	assert.Nil(t, data)

	revoked, err = sessions.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestSessionStoreRejectsExpired(t *testing.T) {
	sessions := NewSessionService(store.NewMemoryStore(), quietLogger())

	err := sessions.Store(context.Background(), "jti-2", testPhone, time.Now().Add(-time.Minute))
	assert.Error(t, err)
}
