package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/auth"
)

const (
	UserIDKey = logger.ActorKey
	AdminKey  = "isAdmin"
	TokenKey  = "token"
)

// UserLookup нужен, чтобы узнать флаг администратора и убедиться, что пользователь не удалён
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type extractFunc func(r *http.Request) (string, error)

// AuthMiddleware проверяет JWT токен из Authorization header
func AuthMiddleware(jwtManager *auth.JWTManager, blacklist auth.TokenBlacklist, users UserLookup) gin.HandlerFunc {
	return authenticate(jwtManager, blacklist, users, auth.ExtractTokenFromHeader)
}

// WSAuthMiddleware специальный middleware для WebSocket, принимает ещё и ?token=
func WSAuthMiddleware(jwtManager *auth.JWTManager, blacklist auth.TokenBlacklist, users UserLookup) gin.HandlerFunc {
	return authenticate(jwtManager, blacklist, users, auth.ExtractToken)
}

func authenticate(jwtManager *auth.JWTManager, blacklist auth.TokenBlacklist, users UserLookup, extract extractFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extract(c.Request)
		if err != nil {
			abort(c, "missing or invalid token")
			return
		}

		// Проверяем, не в черном списке ли токен
		revoked, err := blacklist.IsRevoked(c.Request.Context(), token)
		if err != nil {
			logger.Ctx(c.Request.Context()).Error().Err(err).Msg("blacklist lookup failed")
			abort(c, "token check unavailable")
			return
		}
		if revoked {
			abort(c, "token is blacklisted")
			return
		}

		userID, _, err := jwtManager.UserID(token)
		if err != nil {
			abort(c, "invalid token")
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			abort(c, "unknown user")
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(AdminKey, user.IsAdmin)
		c.Set(TokenKey, token)
		c.Next()
	}
}

func abort(c *gin.Context, msg string) {
	err := apperr.Auth(msg)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": apperr.KindOf(err), "message": msg},
	})
}

// UserID достаёт id пользователя, выставленный AuthMiddleware
func UserID(c *gin.Context) uuid.UUID {
	return c.MustGet(UserIDKey).(uuid.UUID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetBool(AdminKey)
}
