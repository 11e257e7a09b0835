package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

// SendMessageRequest тело сообщения, пустой body допустим при наличии вложений
type SendMessageRequest struct {
	Body        string                `json:"body"`
	Attachments []protocol.Attachment `json:"attachments"`
	ThreadID    *string               `json:"thread_id"`
}

type EditMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type PinRequest struct {
	MessageID string `json:"message_id" binding:"required,len=26"`
}

type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=public private"`
}

type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type RoomResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Visibility   string    `json:"visibility"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewRoomResponse(r *models.Room) RoomResponse {
	return RoomResponse{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Visibility:   r.Visibility,
		MessageCount: r.MessageCount,
		CreatedAt:    r.CreatedAt,
	}
}

type ThreadResponse struct {
	ID            uuid.UUID           `json:"id"`
	Participants  []protocol.UserInfo `json:"participants"`
	CreatedAt     time.Time           `json:"created_at"`
	LastMessageAt *time.Time          `json:"last_message_at,omitempty"`
}

func NewThreadResponse(t *models.DirectThread) ThreadResponse {
	return ThreadResponse{
		ID:            t.ID,
		Participants:  []protocol.UserInfo{participant(t.UserAID, &t.UserA), participant(t.UserBID, &t.UserB)},
		CreatedAt:     t.CreatedAt,
		LastMessageAt: t.LastMessageAt,
	}
}

type PresenceResponse struct {
	RoomID uuid.UUID   `json:"room_id"`
	Online []uuid.UUID `json:"online"`
	Typing []uuid.UUID `json:"typing"`
}

// participant связь может быть не подгружена сразу после создания диалога
func participant(id uuid.UUID, u *models.User) protocol.UserInfo {
	info := NewUserInfo(u)
	info.ID = id
	return info
}
