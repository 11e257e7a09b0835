// Package websocket шлюз постоянных соединений: регистрация клиентов,
// членство в комнатах, присутствие, набор текста и рассылка событий.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/metrics"
	"github.com/thereayou/livechat/pkg/protocol"
)

const (
	reasonDisconnect = "disconnect"
	reasonSlow       = "slow_consumer"
	reasonStale      = "stale"
	reasonShutdown   = "shutdown"
)

type Hub struct {
	opts Options

	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Клиенты в комнатах
	rooms map[uuid.UUID]map[uuid.UUID]*Client

	mu sync.RWMutex

	typing *TypingCoordinator
	log    zerolog.Logger
	now    func() time.Time

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// roomEffect то, что нужно разослать после снятия блокировки hub
type roomEffect struct {
	roomID   uuid.UUID
	userID   uuid.UUID
	userLeft bool
}

// NewHub создает новый Hub
func NewHub(opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		opts:        opts,
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		rooms:       make(map[uuid.UUID]map[uuid.UUID]*Client),
		log:         logger.L().With().Str("component", "hub").Logger(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	h.typing = NewTypingCoordinator(opts.TypingTimeout, h.publishTyping)
	return h
}

func (h *Hub) Typing() *TypingCoordinator {
	return h.typing
}

// Run запускает периодическую проверку зависших соединений до Stop или отмены ctx
func (h *Hub) Run(ctx context.Context) {
	interval := h.opts.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Stop закрывает все соединения. После Stop новые клиенты не принимаются.
func (h *Hub) Stop() {
	h.cancel()
	h.typing.Stop()

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c, reasonShutdown)
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) error {
	if h.ctx.Err() != nil {
		return ErrHubStopped
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client
	metrics.Connections.Inc()

	h.log.Debug().
		Str(logger.FieldClientID, client.ID.String()).
		Str(logger.FieldUserID, client.UserID.String()).
		Msg("client registered")
	return nil
}

// Unregister отменяет регистрацию клиента после закрытия соединения
func (h *Hub) Unregister(client *Client) {
	h.remove(client, reasonDisconnect)
}

// remove убирает клиента из всех комнат и закрывает его очередь. Повторный
// вызов ничего не делает.
func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	if h.clients[client.ID] != client {
		h.mu.Unlock()
		return
	}

	var effects []roomEffect
	for _, roomID := range client.GetRooms() {
		effects = append(effects, h.leaveLocked(client, roomID))
	}

	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}
	delete(h.clients, client.ID)
	close(client.send)
	if client.Conn != nil && reason != reasonDisconnect {
		_ = client.Conn.Close()
	}
	h.mu.Unlock()

	metrics.Connections.Dec()
	if reason != reasonDisconnect {
		metrics.Evictions.WithLabelValues(reason).Inc()
	}
	h.log.Debug().
		Str(logger.FieldClientID, client.ID.String()).
		Str(logger.FieldUserID, client.UserID.String()).
		Str("reason", reason).
		Msg("client unregistered")

	h.applyEffects(effects)
}

// JoinRoom добавляет клиента в комнату. Возвращает false, если клиент уже там
// или не зарегистрирован.
func (h *Hub) JoinRoom(client *Client, roomID uuid.UUID) bool {
	h.mu.Lock()
	if h.clients[client.ID] != client || client.IsInRoom(roomID) {
		h.mu.Unlock()
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[roomID][client.ID] = client
	client.addRoom(roomID)
	metrics.RoomMemberships.Inc()
	h.mu.Unlock()

	// Уведомляем других участников о присоединении
	h.publish(roomID, protocol.UserJoined{SocketID: client.ID, UserID: client.UserID, RoomID: roomID}, func(c *Client) bool {
		return c.ID == client.ID
	})

	// Отправляем список участников новому клиенту
	h.SendToClient(client, protocol.RoomUsers{RoomID: roomID, UserIDs: h.GetRoomUsers(roomID)})
	return true
}

// LeaveRoom удаляет клиента из комнаты
func (h *Hub) LeaveRoom(client *Client, roomID uuid.UUID) {
	h.mu.Lock()
	if !client.IsInRoom(roomID) {
		h.mu.Unlock()
		return
	}
	effect := h.leaveLocked(client, roomID)
	h.mu.Unlock()

	h.applyEffects([]roomEffect{effect})
}

// RemoveUser выводит из комнаты все соединения пользователя, например после
// удаления его из участников. Сами соединения получают user-left о себе.
// Возвращает число отключённых от комнаты соединений.
func (h *Hub) RemoveUser(roomID, userID uuid.UUID) int {
	h.mu.Lock()
	var (
		removed []*Client
		effects []roomEffect
	)
	for _, client := range h.rooms[roomID] {
		if client.UserID == userID {
			removed = append(removed, client)
		}
	}
	for _, client := range removed {
		effects = append(effects, h.leaveLocked(client, roomID))
	}
	h.mu.Unlock()

	h.applyEffects(effects)
	for _, client := range removed {
		h.SendToClient(client, protocol.UserLeft{UserID: userID, RoomID: roomID})
	}
	return len(removed)
}

func (h *Hub) leaveLocked(client *Client, roomID uuid.UUID) roomEffect {
	client.removeRoom(roomID)
	effect := roomEffect{roomID: roomID, userID: client.UserID}

	room, ok := h.rooms[roomID]
	if !ok {
		return effect
	}
	if _, ok := room[client.ID]; !ok {
		return effect
	}
	delete(room, client.ID)
	metrics.RoomMemberships.Dec()

	effect.userLeft = true
	for _, other := range room {
		if other.UserID == client.UserID {
			effect.userLeft = false
			break
		}
	}
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	return effect
}

// applyEffects снимает набор текста и сообщает о выходе, если у пользователя
// не осталось соединений в комнате
func (h *Hub) applyEffects(effects []roomEffect) {
	for _, e := range effects {
		if !e.userLeft {
			continue
		}
		h.typing.Clear(e.roomID, e.userID)
		h.PublishToRoom(e.roomID, protocol.UserLeft{UserID: e.userID, RoomID: e.roomID})
	}
}

// PublishToRoom отправляет событие всем соединениям комнаты, включая отправителя
func (h *Hub) PublishToRoom(roomID uuid.UUID, ev protocol.ServerEvent) {
	h.publish(roomID, ev, nil)
}

// publishTyping рассылает user-typing всем, кроме соединений самого печатающего
func (h *Hub) publishTyping(roomID uuid.UUID, ev protocol.ServerEvent) {
	var typer uuid.UUID
	if ut, ok := ev.(protocol.UserTyping); ok {
		typer = ut.UserID
	}
	h.publish(roomID, ev, func(c *Client) bool { return c.UserID == typer })
}

func (h *Hub) publish(roomID uuid.UUID, ev protocol.ServerEvent, skip func(*Client) bool) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for _, client := range h.rooms[roomID] {
		if skip != nil && skip(client) {
			continue
		}
		if !h.enqueueLocked(client, data) {
			slow = append(slow, client)
			continue
		}
		delivered++
	}
	h.mu.RUnlock()

	h.countDelivered(ev, delivered)
	h.evictSlow(slow)
}

// PublishToUsers отправляет событие всем соединениям перечисленных пользователей
func (h *Hub) PublishToUsers(userIDs []uuid.UUID, ev protocol.ServerEvent) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}

	seen := make(map[uuid.UUID]bool, len(userIDs))
	var slow []*Client
	h.mu.RLock()
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		for _, client := range h.userClients[userID] {
			if !h.enqueueLocked(client, data) {
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	metrics.EventsDelivered.WithLabelValues(ev.EventType()).Inc()
	h.evictSlow(slow)
}

// SendToClient отправляет событие одному соединению
func (h *Hub) SendToClient(client *Client, ev protocol.ServerEvent) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	queued := true
	if h.clients[client.ID] == client {
		queued = h.enqueueLocked(client, data)
	}
	h.mu.RUnlock()

	if !queued {
		h.evictSlow([]*Client{client})
		return
	}
	metrics.EventsDelivered.WithLabelValues(ev.EventType()).Inc()
}

// enqueueLocked кладёт кадр в очередь клиента, не блокируясь. Требует h.mu.
func (h *Hub) enqueueLocked(client *Client, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// evictSlow отключает клиентов с переполненной очередью. Пропуск кадра нарушил
// бы порядок в комнате, поэтому клиент переподключается и перечитывает историю.
func (h *Hub) evictSlow(clients []*Client) {
	for _, c := range clients {
		metrics.DroppedSends.Inc()
		h.log.Warn().
			Str(logger.FieldClientID, c.ID.String()).
			Str(logger.FieldUserID, c.UserID.String()).
			Msg("client send channel full, evicting")
		h.remove(c, reasonSlow)
	}
}

func (h *Hub) encode(ev protocol.ServerEvent) ([]byte, bool) {
	data, err := protocol.EncodeServerEvent(ev)
	if err != nil {
		h.log.Error().Err(err).Str(logger.FieldEvent, ev.EventType()).Msg("failed to encode event")
		return nil, false
	}
	return data, true
}

func (h *Hub) countDelivered(ev protocol.ServerEvent, n int) {
	if n > 0 {
		metrics.EventsDelivered.WithLabelValues(ev.EventType()).Add(float64(n))
	}
}

// Sweep отключает соединения, от которых давно ничего не приходило
func (h *Hub) Sweep() int {
	deadline := h.now().Add(-h.opts.PongWait)

	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if c.LastSeen().Before(deadline) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Info().
			Str(logger.FieldClientID, c.ID.String()).
			Str(logger.FieldUserID, c.UserID.String()).
			Msg("evicting stale client")
		h.remove(c, reasonStale)
	}
	return len(stale)
}

// GetOnlineUsers возвращает список онлайн пользователей
func (h *Hub) GetOnlineUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	sortIDs(users)
	return users
}

// GetRoomUsers возвращает список пользователей в комнате
func (h *Hub) GetRoomUsers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userMap := make(map[uuid.UUID]bool)
	for _, client := range h.rooms[roomID] {
		userMap[client.UserID] = true
	}

	users := make([]uuid.UUID, 0, len(userMap))
	for userID := range userMap {
		users = append(users, userID)
	}
	sortIDs(users)
	return users
}

// IsOnlineInRoom true, пока у пользователя есть хотя бы одно соединение в комнате
func (h *Hub) IsOnlineInRoom(roomID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[roomID] {
		if client.UserID == userID {
			return true
		}
	}
	return false
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
