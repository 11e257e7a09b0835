package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/services"
	"github.com/thereayou/livechat/internal/websocket"
	"github.com/thereayou/livechat/pkg/protocol"
)

// MessageHandler разбирает события, пришедшие по сокету
type MessageHandler struct {
	db    *database.Database
	hub   *websocket.Hub
	rooms *services.RoomService
	chat  *services.ChatService
}

func NewMessageHandler(db *database.Database, hub *websocket.Hub, rooms *services.RoomService, chat *services.ChatService) *MessageHandler {
	return &MessageHandler{db: db, hub: hub, rooms: rooms, chat: chat}
}

func (h *MessageHandler) HandleEvent(ctx context.Context, client *websocket.Client, ev protocol.ClientEvent) error {
	actor, err := h.actor(ctx, client.UserID)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case *protocol.JoinRoom:
		return h.handleJoin(ctx, client, actor, e)
	case *protocol.LeaveRoom:
		h.hub.LeaveRoom(client, e.RoomID)
		return nil
	case *protocol.NewMessage:
		return h.handleNewMessage(ctx, client, actor, e)
	case *protocol.Typing:
		return h.handleTyping(client, e)
	default:
		logger.Ctx(ctx).Warn().Str(logger.FieldEvent, ev.EventType()).Msg("unhandled event type")
		return apperr.Validation("unsupported event")
	}
}

// actor флаг администратора читается на каждое событие, чтобы отзыв прав
// действовал без переподключения
func (h *MessageHandler) actor(ctx context.Context, userID uuid.UUID) (services.Actor, error) {
	user, err := h.db.GetUser(ctx, userID)
	if err != nil {
		return services.Actor{}, apperr.Auth("unknown user")
	}
	return services.Actor{ID: user.ID, IsAdmin: user.IsAdmin}, nil
}

func (h *MessageHandler) handleJoin(ctx context.Context, client *websocket.Client, actor services.Actor, e *protocol.JoinRoom) error {
	if _, err := h.rooms.CheckAccess(ctx, actor, e.RoomID); err != nil {
		return err
	}
	if !h.hub.JoinRoom(client, e.RoomID) {
		// Повторный join ничего не меняет, но снимок участников клиент получит снова
		client.SendEvent(protocol.RoomUsers{RoomID: e.RoomID, UserIDs: h.hub.GetRoomUsers(e.RoomID)})
	}
	return nil
}

func (h *MessageHandler) handleNewMessage(ctx context.Context, client *websocket.Client, actor services.Actor, e *protocol.NewMessage) error {
	if !client.IsInRoom(e.RoomID) {
		return websocket.ErrNotInRoom
	}
	if e.UserID != uuid.Nil && e.UserID != client.UserID {
		return apperr.Forbidden("userId does not match the connection")
	}

	_, err := h.chat.AppendMessage(ctx, actor, e.RoomID, services.NewMessageInput{
		Body:        e.Message,
		Attachments: e.Attachments,
		ThreadID:    e.ThreadID,
	})
	if err != nil {
		return err
	}
	// Отправителю сообщение приходит тем же message-received из рассылки
	h.hub.Typing().Clear(e.RoomID, client.UserID)
	return nil
}

func (h *MessageHandler) handleTyping(client *websocket.Client, e *protocol.Typing) error {
	if !client.IsInRoom(e.RoomID) {
		return websocket.ErrNotInRoom
	}
	if e.UserID != uuid.Nil && e.UserID != client.UserID {
		return apperr.Forbidden("userId does not match the connection")
	}
	h.hub.Typing().Set(e.RoomID, client.UserID, e.IsTyping)
	return nil
}
