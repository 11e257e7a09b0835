package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/handlers"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/middleware"
	"github.com/thereayou/livechat/pkg/auth"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	User         *handlers.UserHandler
	Room         *handlers.RoomHandler
	Message      *handlers.HTTPMessageHandler
	Direct       *handlers.DirectHandler
	Notification *handlers.NotificationHandler
	WebSocket    *handlers.WebSocketHandler

	RestAuth      gin.HandlerFunc
	WebSocketAuth gin.HandlerFunc
	DB            *database.Database
}

func middlewareFor(jwtMgr *auth.JWTManager, blacklist auth.TokenBlacklist, db *database.Database, ws bool) gin.HandlerFunc {
	if ws {
		return middleware.WSAuthMiddleware(jwtMgr, blacklist, db)
	}
	return middleware.AuthMiddleware(jwtMgr, blacklist, db)
}

func NewRouter(cfg *config.Config, log zerolog.Logger, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		if err := h.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	APIEndpoints(r, h)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func APIEndpoints(r *gin.Engine, h *Handlers) {
	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/logout", h.RestAuth, h.Auth.Logout)
	}

	r.GET("/ws", h.WebSocketAuth, h.WebSocket.HandleWebSocket)

	api := r.Group("/api/v1", h.RestAuth)
	{
		api.GET("/users/me", h.User.GetMe)
		api.PATCH("/users/me", h.User.UpdateMe)
		api.GET("/users/mentions", h.User.SearchUsers)
		api.GET("/users/:id", h.User.GetUser)

		api.POST("/rooms", h.Room.CreateRoom)
		api.GET("/rooms", h.Room.ListRooms)
		api.GET("/rooms/:id", h.Room.GetRoom)
		api.GET("/rooms/:id/members", h.Room.GetRoomMembers)
		api.POST("/rooms/:id/members", h.Room.AddMember)
		api.DELETE("/rooms/:id/members/:userId", h.Room.RemoveMember)
		api.GET("/rooms/:id/presence", h.Room.GetPresence)

		api.GET("/rooms/:id/messages", h.Message.GetRoomMessages)
		api.POST("/rooms/:id/messages", h.Message.SendMessage)
		api.GET("/rooms/:id/pins", h.Message.ListPins)
		api.POST("/rooms/:id/pins", h.Message.PinMessage)
		api.DELETE("/rooms/:id/pins/:messageId", h.Message.UnpinMessage)

		api.GET("/messages/:id", h.Message.GetMessage)
		api.PATCH("/messages/:id", h.Message.UpdateMessage)
		api.DELETE("/messages/:id", h.Message.DeleteMessage)
		api.GET("/messages/:id/replies", h.Message.GetReplies)
		api.GET("/messages/:id/reactions", h.Message.GetReactions)
		api.POST("/messages/:id/reactions", h.Message.ToggleReaction)

		api.GET("/search/messages", h.Message.Search)

		api.POST("/dm/threads", h.Direct.OpenThread)
		api.GET("/dm/threads", h.Direct.ListThreads)
		api.GET("/dm/threads/:id/messages", h.Direct.GetThreadMessages)
		api.POST("/dm/threads/:id/messages", h.Direct.SendThreadMessage)
		api.POST("/dm/users/:id/messages", h.Direct.SendToUser)

		api.GET("/notifications", h.Notification.List)
		api.POST("/notifications/read-all", h.Notification.MarkAllRead)
		api.POST("/notifications/:id/read", h.Notification.MarkRead)
	}
}
