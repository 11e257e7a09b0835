package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// События клиент -> сервер
const (
	EventJoinRoom   = "join-room"
	EventLeaveRoom  = "leave-room"
	EventNewMessage = "new-message"
	EventTyping     = "typing"
)

// События сервер -> клиент
const (
	EventMessageReceived = "message-received"
	EventMessageEdited   = "message-edited"
	EventMessageDeleted  = "message-deleted"
	EventReactionUpdated = "reaction-updated"
	EventMessagePinned   = "message-pinned"
	EventMessageUnpinned = "message-unpinned"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventUserTyping      = "user-typing"
	EventRoomUsers       = "room-users"
	EventNotification    = "notification"
	EventError           = "error"
)

// ErrMalformed оборачивает любую ошибку разбора и проверки
var ErrMalformed = errors.New("malformed event")

type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ClientEvent реализуют только клиентские события из этого файла
type ClientEvent interface {
	EventType() string
	Validate() error
	clientEvent()
}

type JoinRoom struct {
	RoomID uuid.UUID `json:"roomId"`
}

type LeaveRoom struct {
	RoomID uuid.UUID `json:"roomId"`
}

// NewMessage просит сохранить и разослать сообщение. Автором всегда
// становится владелец соединения, UserID если задан должен с ним совпадать.
type NewMessage struct {
	RoomID      uuid.UUID    `json:"roomId"`
	UserID      uuid.UUID    `json:"userId"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ThreadID    *string      `json:"threadId,omitempty"`
}

type Typing struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

func (JoinRoom) EventType() string   { return EventJoinRoom }
func (LeaveRoom) EventType() string  { return EventLeaveRoom }
func (NewMessage) EventType() string { return EventNewMessage }
func (Typing) EventType() string     { return EventTyping }

func (JoinRoom) clientEvent()   {}
func (LeaveRoom) clientEvent()  {}
func (NewMessage) clientEvent() {}
func (Typing) clientEvent()     {}

func requireRoom(id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: roomId is required", ErrMalformed)
	}
	return nil
}

func (e JoinRoom) Validate() error  { return requireRoom(e.RoomID) }
func (e LeaveRoom) Validate() error { return requireRoom(e.RoomID) }
func (e Typing) Validate() error    { return requireRoom(e.RoomID) }

func (e NewMessage) Validate() error {
	if err := requireRoom(e.RoomID); err != nil {
		return err
	}
	for i, a := range e.Attachments {
		if a.URL == "" {
			return fmt.Errorf("%w: attachment %d has no url", ErrMalformed, i)
		}
	}
	return nil
}

func newClientEvent(eventType string) (ClientEvent, error) {
	switch eventType {
	case EventJoinRoom:
		return &JoinRoom{}, nil
	case EventLeaveRoom:
		return &LeaveRoom{}, nil
	case EventNewMessage:
		return &NewMessage{}, nil
	case EventTyping:
		return &Typing{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformed, eventType)
	}
}

// DecodeClientEvent разбирает и проверяет один кадр клиента. Возвращает
// указатель на одно из клиентских событий.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, err := newClientEvent(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	return encode(ev.EventType(), ev)
}

// ServerEvent реализуют только серверные события из этого файла
type ServerEvent interface {
	EventType() string
	serverEvent()
}

// MessageReceived несёт полную запись сообщения
type MessageReceived struct {
	Message
}

type MessageEdited struct {
	Message
}

// MessageDeleted несёт надгробие удалённого сообщения
type MessageDeleted struct {
	Message
}

type ReactionUpdated struct {
	MessageID string          `json:"messageId"`
	RoomID    *uuid.UUID      `json:"roomId,omitempty"`
	Reactions []ReactionGroup `json:"reactions"`
}

type MessagePinned struct {
	RoomID    uuid.UUID `json:"roomId"`
	MessageID string    `json:"messageId"`
	PinnedBy  uuid.UUID `json:"pinnedBy"`
	PinnedAt  time.Time `json:"pinnedAt"`
}

type MessageUnpinned struct {
	RoomID    uuid.UUID `json:"roomId"`
	MessageID string    `json:"messageId"`
}

type UserJoined struct {
	SocketID uuid.UUID `json:"socketId"`
	UserID   uuid.UUID `json:"userId"`
	RoomID   uuid.UUID `json:"roomId"`
}

type UserLeft struct {
	UserID uuid.UUID `json:"userId"`
	RoomID uuid.UUID `json:"roomId"`
}

type UserTyping struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

type RoomUsers struct {
	RoomID  uuid.UUID   `json:"roomId"`
	UserIDs []uuid.UUID `json:"userIds"`
}

type NotificationCreated struct {
	Notification
}

type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (MessageReceived) EventType() string     { return EventMessageReceived }
func (MessageEdited) EventType() string       { return EventMessageEdited }
func (MessageDeleted) EventType() string      { return EventMessageDeleted }
func (ReactionUpdated) EventType() string     { return EventReactionUpdated }
func (MessagePinned) EventType() string       { return EventMessagePinned }
func (MessageUnpinned) EventType() string     { return EventMessageUnpinned }
func (UserJoined) EventType() string          { return EventUserJoined }
func (UserLeft) EventType() string            { return EventUserLeft }
func (UserTyping) EventType() string          { return EventUserTyping }
func (RoomUsers) EventType() string           { return EventRoomUsers }
func (NotificationCreated) EventType() string { return EventNotification }
func (Error) EventType() string               { return EventError }

func (MessageReceived) serverEvent()     {}
func (MessageEdited) serverEvent()       {}
func (MessageDeleted) serverEvent()      {}
func (ReactionUpdated) serverEvent()     {}
func (MessagePinned) serverEvent()       {}
func (MessageUnpinned) serverEvent()     {}
func (UserJoined) serverEvent()          {}
func (UserLeft) serverEvent()            {}
func (UserTyping) serverEvent()          {}
func (RoomUsers) serverEvent()           {}
func (NotificationCreated) serverEvent() {}
func (Error) serverEvent()               {}

func newServerEvent(eventType string) (ServerEvent, error) {
	switch eventType {
	case EventMessageReceived:
		return &MessageReceived{}, nil
	case EventMessageEdited:
		return &MessageEdited{}, nil
	case EventMessageDeleted:
		return &MessageDeleted{}, nil
	case EventReactionUpdated:
		return &ReactionUpdated{}, nil
	case EventMessagePinned:
		return &MessagePinned{}, nil
	case EventMessageUnpinned:
		return &MessageUnpinned{}, nil
	case EventUserJoined:
		return &UserJoined{}, nil
	case EventUserLeft:
		return &UserLeft{}, nil
	case EventUserTyping:
		return &UserTyping{}, nil
	case EventRoomUsers:
		return &RoomUsers{}, nil
	case EventNotification:
		return &NotificationCreated{}, nil
	case EventError:
		return &Error{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformed, eventType)
	}
}

func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	return encode(ev.EventType(), ev)
}

// DecodeServerEvent разбирает кадр сервера в указатель на серверное событие
func DecodeServerEvent(raw []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, err := newServerEvent(env.Type)
	if err != nil {
		return nil, err
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
	}
	return ev, nil
}

func encode(eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
