package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/metrics"
	"github.com/thereayou/livechat/pkg/protocol"
)

// EventHandler обрабатывает разобранные события клиента. Ошибка уходит
// только этому соединению событием error.
type EventHandler interface {
	HandleEvent(ctx context.Context, client *Client, ev protocol.ClientEvent) error
}

type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Hub    *Hub

	send     chan []byte
	rooms    map[uuid.UUID]bool
	mu       sync.RWMutex
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	c := &Client{
		ID:      uuid.New(),
		UserID:  userID,
		Conn:    conn,
		Hub:     hub,
		send:    make(chan []byte, hub.opts.SendBuffer),
		rooms:   make(map[uuid.UUID]bool),
		limiter: rate.NewLimiter(rate.Limit(hub.opts.SendRate), hub.opts.SendBurst),
	}
	c.touch()
	return c
}

func (c *Client) touch() {
	c.lastSeen.Store(c.Hub.now().UnixNano())
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// ReadPump читает сообщения от клиента до разрыва соединения
func (c *Client) ReadPump(ctx context.Context, handler EventHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	opts := c.Hub.opts
	log := logger.L().With().
		Str(logger.FieldClientID, c.ID.String()).
		Str(logger.FieldUserID, c.UserID.String()).
		Logger()
	ctx = logger.WithLogger(ctx, log)

	c.Conn.SetReadLimit(opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
		c.touch()
		c.Conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		ev, err := protocol.DecodeClientEvent(raw)
		if err != nil {
			metrics.EventsReceived.WithLabelValues("malformed").Inc()
			c.SendError(apperr.Validation(err.Error()))
			continue
		}
		metrics.EventsReceived.WithLabelValues(ev.EventType()).Inc()

		if ev.EventType() == protocol.EventNewMessage && !c.limiter.Allow() {
			c.SendError(apperr.RateLimited("sending too fast"))
			continue
		}

		if handler == nil {
			continue
		}
		if err := handler.HandleEvent(ctx, c, ev); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				log.Error().Err(err).Str(logger.FieldEvent, ev.EventType()).Msg("error handling event")
			} else {
				log.Debug().Err(err).Str(logger.FieldEvent, ev.EventType()).Msg("event rejected")
			}
			c.SendError(err)
		}
	}
}

// WritePump отправляет сообщения клиенту. Каждое событие уходит отдельным кадром.
func (c *Client) WritePump() {
	opts := c.Hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendEvent(ev protocol.ServerEvent) {
	c.Hub.SendToClient(c, ev)
}

// SendError отправляет error только этому соединению. Внутренние причины наружу не уходят.
func (c *Client) SendError(err error) {
	c.SendEvent(protocol.Error{Message: apperr.PublicMessage(err), Code: string(apperr.KindOf(err))})
}

func (c *Client) IsInRoom(roomID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

func (c *Client) GetRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (c *Client) addRoom(roomID uuid.UUID) {
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()
}

func (c *Client) removeRoom(roomID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}
