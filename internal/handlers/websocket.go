package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/middleware"
	ws "github.com/thereayou/livechat/internal/websocket"
)

// WebSocketHandler управляет WebSocket соединениями
type WebSocketHandler struct {
	hub            *ws.Hub
	messageHandler ws.EventHandler
	upgrader       websocket.Upgrader
}

// NewWebSocketHandler создает новый WebSocket handler. Пустой allowedOrigins
// или "*" разрешает любой origin.
func NewWebSocketHandler(hub *ws.Hub, messageHandler ws.EventHandler, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		messageHandler: messageHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket обрабатывает WebSocket соединения
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже записал ответ
		logger.Ctx(c.Request.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	if err := h.hub.Register(client); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, apperr.PublicMessage(err)))
		conn.Close()
		return
	}

	// Контекст запроса отменяется, как только хендлер вернёт управление
	ctx := logger.WithLogger(context.Background(), *logger.Ctx(c.Request.Context()))
	go client.WritePump()
	go client.ReadPump(ctx, h.messageHandler)
}
