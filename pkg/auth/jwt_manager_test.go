package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerify(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	id := uuid.New()

	token, exp, err := m.Generate(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	got, claims, err := m.UserID(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyRejects(t *testing.T) {
	token, _, err := NewJWTManager("secret", time.Hour).Generate(uuid.New())
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).Verify(token)
	assert.Error(t, err)

	expired, _, err := NewJWTManager("secret", -time.Minute).Generate(uuid.New())
	require.NoError(t, err)
	_, err = NewJWTManager("secret", time.Hour).Verify(expired)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	_, err := ExtractToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r, _ = http.NewRequest(http.MethodGet, "/ws?token=fromquery", nil)
	r.Header.Set("Authorization", "Bearer abc")
	token, err = ExtractToken(r)
	require.NoError(t, err)
	assert.Equal(t, "fromquery", token)

	r.Header.Set("Authorization", "Basic zzz")
	_, err = ExtractTokenFromHeader(r)
	assert.Error(t, err)
}

func TestMemoryBlacklist(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	b := NewMemoryBlacklist()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Revoke(ctx, "t1", time.Minute))
	revoked, err := b.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = b.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
