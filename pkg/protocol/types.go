// Package protocol записи и события, которыми обмениваются шлюз чата и клиенты.
// Id сообщений назначает сервер, они глобально уникальны, и клиенты по ним
// отбрасывают эхо собственных отправок.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type ReactionGroup struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"user_ids"`
}

// Message полная запись сообщения. Удалённое сообщение сохраняет id и
// created_at, но уже без текста и вложений.
type Message struct {
	ID             string          `json:"id"`
	RoomID         *uuid.UUID      `json:"room_id,omitempty"`
	DirectThreadID *uuid.UUID      `json:"dm_thread_id,omitempty"`
	AuthorID       uuid.UUID       `json:"author_id"`
	Author         *UserInfo       `json:"author,omitempty"`
	Body           string          `json:"body"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	ThreadID       *string         `json:"thread_id,omitempty"`
	Reactions      []ReactionGroup `json:"reactions,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Edited         bool            `json:"edited"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	Deleted        bool            `json:"deleted"`
}

// Tombstone удалённая форма m
func (m Message) Tombstone() Message {
	m.Deleted = true
	m.Body = ""
	m.Attachments = nil
	m.Reactions = nil
	return m
}

type Notification struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	ActorID        uuid.UUID  `json:"actor_id"`
	MessageID      string     `json:"message_id,omitempty"`
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	DirectThreadID *uuid.UUID `json:"dm_thread_id,omitempty"`
	Read           bool       `json:"read"`
	CreatedAt      time.Time  `json:"created_at"`
}
