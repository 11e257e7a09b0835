package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/pkg/auth"
)

func TestAuthFlow(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	blacklist := auth.NewMemoryBlacklist()
	svc := NewAuthService(env.db, auth.NewJWTManager("secret", time.Hour), blacklist)

	reg, err := svc.Register(ctx, RegisterRequest{Username: "dave", Email: "Dave@Example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "dave@example.com", reg.User.Email)

	_, err = svc.Register(ctx, RegisterRequest{Username: "dave", Email: "other@example.com", Password: "password1"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Login(ctx, LoginRequest{Email: "dave@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.ErrAuth)
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password1"})
	assert.ErrorIs(t, err, apperr.ErrAuth)

	login, err := svc.Login(ctx, LoginRequest{Email: "dave@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	require.NoError(t, svc.Logout(ctx, login.Token))
	revoked, err := blacklist.IsRevoked(ctx, login.Token)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.ErrorIs(t, svc.Logout(ctx, "garbage"), apperr.ErrAuth)
}
