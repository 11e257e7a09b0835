package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/auth"
)

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "admin": IsAdmin(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	blacklist := auth.NewMemoryBlacklist()
	admin := &models.User{ID: uuid.New(), IsAdmin: true}
	users := fakeUsers{admin.ID: admin}

	token, _, err := jwtManager.Generate(admin.ID)
	require.NoError(t, err)
	stranger, _, err := jwtManager.Generate(uuid.New())
	require.NoError(t, err)

	r := newRouter(AuthMiddleware(jwtManager, blacklist, users))

	do := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("Bearer " + token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admin":true`)

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+stranger).Code)

	require.NoError(t, blacklist.Revoke(context.Background(), token, time.Hour))
	w = do("Bearer " + token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
}

func TestWSAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	user := &models.User{ID: uuid.New()}
	token, _, err := jwtManager.Generate(user.ID)
	require.NoError(t, err)

	r := newRouter(WSAuthMiddleware(jwtManager, auth.NewMemoryBlacklist(), fakeUsers{user.ID: user}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
