package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/config"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/idgen"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/metrics"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

const (
	maxRepliesPage = 200
	maxSearchPage  = 50
)

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_.\-]{3,50})`)

// ChatService хранилище сообщений: запись, правка, удаление, чтение истории,
// реакции и закрепы. Все изменения комнат проходят через Fanout.Room, чтобы
// события расходились в порядке записи.
type ChatService struct {
	db            *database.Database
	ids           *idgen.Generator
	fanout        Fanout
	rooms         *RoomService
	directs       *DirectService
	notifications *NotificationService
	cfg           config.ChatConfig
	log           zerolog.Logger
	now           func() time.Time
}

func NewChatService(
	db *database.Database,
	ids *idgen.Generator,
	fanout Fanout,
	rooms *RoomService,
	directs *DirectService,
	notifications *NotificationService,
	cfg config.ChatConfig,
) *ChatService {
	return &ChatService{
		db:            db,
		ids:           ids,
		fanout:        fanout,
		rooms:         rooms,
		directs:       directs,
		notifications: notifications,
		cfg:           cfg,
		log:           logger.L().With().Str("component", "chat").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NewMessageInput тело нового сообщения
type NewMessageInput struct {
	Body        string
	Attachments []protocol.Attachment
	ThreadID    *string
}

func (s *ChatService) validateBody(body string, attachments []protocol.Attachment) error {
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return apperr.Validation("message is empty")
	}
	if s.cfg.MaxBodyLength > 0 && utf8.RuneCountInString(body) > s.cfg.MaxBodyLength {
		return apperr.Validation("message is too long")
	}
	for _, a := range attachments {
		if strings.TrimSpace(a.URL) == "" {
			return apperr.Validation("attachment url is required")
		}
	}
	return nil
}

func (s *ChatService) newMessage(author uuid.UUID, in NewMessageInput) *models.Message {
	msg := &models.Message{
		ID:        s.ids.Next(),
		AuthorID:  author,
		Body:      in.Body,
		ThreadID:  in.ThreadID,
		CreatedAt: s.now(),
	}
	for _, a := range in.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			URL:         a.URL,
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return msg
}

// threadRoot проверяет, что ответ ссылается на сообщение из того же места
func (s *ChatService) threadRoot(ctx context.Context, threadID *string, roomID, dmID *uuid.UUID) (*models.Message, error) {
	if threadID == nil {
		return nil, nil
	}
	root, err := s.db.GetMessage(ctx, *threadID)
	if err != nil {
		return nil, storeErr(err, "thread root not found")
	}
	if !sameTarget(root.RoomID, roomID) || !sameTarget(root.DirectThreadID, dmID) {
		return nil, apperr.Validation("thread root belongs to another conversation")
	}
	if root.ThreadID != nil {
		// Ответ на ответ уходит в исходный тред
		return s.threadRoot(ctx, root.ThreadID, roomID, dmID)
	}
	return root, nil
}

func sameTarget(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AppendMessage пишет сообщение в комнату и рассылает message-received всем
// её участникам, включая отправителя
func (s *ChatService) AppendMessage(ctx context.Context, actor Actor, roomID uuid.UUID, in NewMessageInput) (*protocol.Message, error) {
	if err := s.validateBody(in.Body, in.Attachments); err != nil {
		return nil, err
	}
	room, err := s.rooms.CheckAccess(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	root, err := s.threadRoot(ctx, in.ThreadID, &roomID, nil)
	if err != nil {
		return nil, err
	}
	if root != nil {
		in.ThreadID = &root.ID
	}

	var saved protocol.Message
	err = s.fanout.Room(roomID, func() (protocol.ServerEvent, error) {
		msg := s.newMessage(actor.ID, in)
		msg.RoomID = &roomID
		if err := s.db.SaveMessage(ctx, msg); err != nil {
			return nil, storeErr(err, "message")
		}
		full, err := s.db.GetMessage(ctx, msg.ID)
		if err != nil {
			return nil, storeErr(err, "message")
		}
		saved = toMessage(full, nil)
		return protocol.MessageReceived{Message: saved}, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.WithLabelValues("room").Inc()
	s.log.Debug().Str(logger.FieldRoomID, roomID.String()).Str(logger.FieldMessageID, saved.ID).Msg("message appended")

	s.notifications.notify(ctx, s.roomNotifications(ctx, room, actor, &saved, root))
	return &saved, nil
}

// AppendDirectMessage пишет сообщение в личную переписку
func (s *ChatService) AppendDirectMessage(ctx context.Context, actor Actor, threadID uuid.UUID, in NewMessageInput) (*protocol.Message, error) {
	if err := s.validateBody(in.Body, in.Attachments); err != nil {
		return nil, err
	}
	thread, err := s.directs.GetThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	root, err := s.threadRoot(ctx, in.ThreadID, nil, &threadID)
	if err != nil {
		return nil, err
	}
	if root != nil {
		in.ThreadID = &root.ID
	}

	var saved protocol.Message
	participants := []uuid.UUID{thread.UserAID, thread.UserBID}
	err = s.fanout.Users(threadID, participants, func() (protocol.ServerEvent, error) {
		msg := s.newMessage(actor.ID, in)
		msg.DirectThreadID = &threadID
		if err := s.db.SaveMessage(ctx, msg); err != nil {
			return nil, storeErr(err, "message")
		}
		if err := s.db.TouchDirectThread(ctx, threadID, msg.CreatedAt); err != nil {
			return nil, storeErr(err, "direct thread")
		}
		full, err := s.db.GetMessage(ctx, msg.ID)
		if err != nil {
			return nil, storeErr(err, "message")
		}
		saved = toMessage(full, nil)
		return protocol.MessageReceived{Message: saved}, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.WithLabelValues("dm").Inc()

	recipient := thread.Other(actor.ID)
	s.notifications.notify(ctx, []models.Notification{{
		RecipientID:    recipient,
		Type:           models.NotificationDM,
		ActorID:        actor.ID,
		MessageID:      saved.ID,
		DirectThreadID: &threadID,
	}})
	return &saved, nil
}

// SendDirect пишет пользователю, создавая переписку при первом сообщении
func (s *ChatService) SendDirect(ctx context.Context, actor Actor, recipientID uuid.UUID, in NewMessageInput) (*protocol.Message, error) {
	if err := s.validateBody(in.Body, in.Attachments); err != nil {
		return nil, err
	}
	thread, err := s.directs.OpenThread(ctx, actor, recipientID)
	if err != nil {
		return nil, err
	}
	return s.AppendDirectMessage(ctx, actor, thread.ID, in)
}

func (s *ChatService) roomNotifications(ctx context.Context, room *models.Room, actor Actor, msg *protocol.Message, root *models.Message) []models.Notification {
	var out []models.Notification
	notified := map[uuid.UUID]bool{actor.ID: true}

	if root != nil && !notified[root.AuthorID] {
		notified[root.AuthorID] = true
		out = append(out, models.Notification{
			RecipientID: root.AuthorID,
			Type:        models.NotificationReply,
			ActorID:     actor.ID,
			MessageID:   msg.ID,
			RoomID:      &room.ID,
		})
	}

	names := ParseMentions(msg.Body)
	if len(names) == 0 {
		return out
	}
	users, err := s.db.FindUsersByUsernames(ctx, names)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to resolve mentions")
		return out
	}
	for i := range users {
		u := &users[i]
		if notified[u.ID] || !s.rooms.canSee(ctx, room, u) {
			continue
		}
		notified[u.ID] = true
		out = append(out, models.Notification{
			RecipientID: u.ID,
			Type:        models.NotificationMention,
			ActorID:     actor.ID,
			MessageID:   msg.ID,
			RoomID:      &room.ID,
		})
	}
	return out
}

// ParseMentions возвращает уникальные @username из текста в порядке появления
func ParseMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		name := strings.TrimRight(m[1], ".-")
		key := strings.ToLower(name)
		if len(name) < 3 || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

// loadForChange загружает сообщение для правки, реакции или закрепа.
// Надгробие для таких операций считается отсутствующим.
func (s *ChatService) loadForChange(ctx context.Context, actor Actor, messageID string) (*models.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	if msg.Deleted {
		return nil, apperr.NotFound("message not found")
	}
	if err := s.checkMessageAccess(ctx, actor, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ChatService) checkMessageAccess(ctx context.Context, actor Actor, msg *models.Message) error {
	switch {
	case msg.RoomID != nil:
		_, err := s.rooms.CheckAccess(ctx, actor, *msg.RoomID)
		return err
	case msg.DirectThreadID != nil:
		_, err := s.directs.GetThread(ctx, actor, *msg.DirectThreadID)
		return err
	default:
		return apperr.Internal("message has no target", nil)
	}
}

// publish рассылает изменение туда же, куда ушло само сообщение
func (s *ChatService) publish(ctx context.Context, msg *models.Message, persist func() (protocol.ServerEvent, error)) error {
	if msg.RoomID != nil {
		return s.fanout.Room(*msg.RoomID, persist)
	}
	thread, err := s.db.GetDirectThread(ctx, *msg.DirectThreadID)
	if err != nil {
		return storeErr(err, "direct thread not found")
	}
	return s.fanout.Users(thread.ID, []uuid.UUID{thread.UserAID, thread.UserBID}, persist)
}

// EditMessage заменяет текст сообщения. Править может только автор.
// Одновременные правки не сравниваются: сохраняется последняя.
func (s *ChatService) EditMessage(ctx context.Context, actor Actor, messageID, body string) (*protocol.Message, error) {
	msg, err := s.loadForChange(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actor.ID {
		return nil, apperr.Forbidden("only the author can edit a message")
	}
	if err := s.validateBody(body, toMessage(msg, nil).Attachments); err != nil {
		return nil, err
	}

	var edited protocol.Message
	err = s.publish(ctx, msg, func() (protocol.ServerEvent, error) {
		if err := s.db.UpdateMessageBody(ctx, messageID, body, s.now()); err != nil {
			return nil, storeErr(err, "message not found")
		}
		full, err := s.db.GetMessage(ctx, messageID)
		if err != nil {
			return nil, storeErr(err, "message not found")
		}
		reactions, err := s.db.GetReactions(ctx, messageID)
		if err != nil {
			return nil, storeErr(err, "reactions")
		}
		edited = toMessage(full, reactions)
		return protocol.MessageEdited{Message: edited}, nil
	})
	if err != nil {
		return nil, err
	}
	return &edited, nil
}

// DeleteMessage превращает сообщение в надгробие. Удалять может автор или,
// при isAdminOverride, администратор.
func (s *ChatService) DeleteMessage(ctx context.Context, actor Actor, messageID string, isAdminOverride bool) error {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return storeErr(err, "message not found")
	}
	override := isAdminOverride && actor.IsAdmin
	if msg.AuthorID != actor.ID && !override {
		return apperr.Forbidden("only the author can delete a message")
	}
	if msg.Deleted {
		return nil
	}
	if !override {
		if err := s.checkMessageAccess(ctx, actor, msg); err != nil {
			return err
		}
	}

	return s.publish(ctx, msg, func() (protocol.ServerEvent, error) {
		if err := s.db.TombstoneMessage(ctx, messageID); err != nil {
			return nil, storeErr(err, "message not found")
		}
		msg.Deleted = true
		return protocol.MessageDeleted{Message: toMessage(msg, nil)}, nil
	})
}

func (s *ChatService) page(p Page) (Page, error) {
	if p.Before != "" && !idgen.Valid(p.Before) {
		return p, apperr.Validation("invalid before cursor")
	}
	if p.Limit <= 0 {
		p.Limit = s.cfg.HistoryPageSize
	}
	if s.cfg.MaxPageSize > 0 && p.Limit > s.cfg.MaxPageSize {
		p.Limit = s.cfg.MaxPageSize
	}
	return p, nil
}

func (s *ChatService) withReactions(ctx context.Context, msgs []models.Message) ([]protocol.Message, error) {
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		if !msgs[i].Deleted {
			ids = append(ids, msgs[i].ID)
		}
	}
	reactions, err := s.db.GetReactionsFor(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "reactions")
	}
	return toMessages(msgs, reactions), nil
}

// ListMessages страница истории комнаты, новые последними
func (s *ChatService) ListMessages(ctx context.Context, actor Actor, roomID uuid.UUID, p Page) ([]protocol.Message, error) {
	p, err := s.page(p)
	if err != nil {
		return nil, err
	}
	if _, err := s.rooms.CheckAccess(ctx, actor, roomID); err != nil {
		return nil, err
	}
	msgs, err := s.db.GetRoomMessages(ctx, roomID, p.Before, p.Limit)
	if err != nil {
		return nil, storeErr(err, "messages")
	}
	return s.withReactions(ctx, msgs)
}

func (s *ChatService) ListDirectMessages(ctx context.Context, actor Actor, threadID uuid.UUID, p Page) ([]protocol.Message, error) {
	p, err := s.page(p)
	if err != nil {
		return nil, err
	}
	if _, err := s.directs.GetThread(ctx, actor, threadID); err != nil {
		return nil, err
	}
	msgs, err := s.db.GetDirectMessages(ctx, threadID, p.Before, p.Limit)
	if err != nil {
		return nil, storeErr(err, "messages")
	}
	return s.withReactions(ctx, msgs)
}

func (s *ChatService) GetMessage(ctx context.Context, actor Actor, messageID string) (*protocol.Message, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	if err := s.checkMessageAccess(ctx, actor, msg); err != nil {
		return nil, err
	}
	out, err := s.withReactions(ctx, []models.Message{*msg})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ListReplies ответы в треде от старых к новым
func (s *ChatService) ListReplies(ctx context.Context, actor Actor, messageID string) ([]protocol.Message, error) {
	root, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	if err := s.checkMessageAccess(ctx, actor, root); err != nil {
		return nil, err
	}
	replies, err := s.db.GetReplies(ctx, messageID, maxRepliesPage)
	if err != nil {
		return nil, storeErr(err, "replies")
	}
	return s.withReactions(ctx, replies)
}

// Search ищет по тексту в видимых пользователю комнатах, roomID сужает поиск до одной
func (s *ChatService) Search(ctx context.Context, actor Actor, query string, roomID *uuid.UUID) ([]protocol.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query is required")
	}

	var rooms []uuid.UUID
	if roomID != nil {
		if _, err := s.rooms.CheckAccess(ctx, actor, *roomID); err != nil {
			return nil, err
		}
		rooms = []uuid.UUID{*roomID}
	} else {
		ids, err := s.db.GetVisibleRoomIDs(ctx, actor.ID, actor.IsAdmin)
		if err != nil {
			return nil, storeErr(err, "rooms")
		}
		rooms = ids
	}

	msgs, err := s.db.SearchMessages(ctx, query, rooms, maxSearchPage)
	if err != nil {
		return nil, storeErr(err, "messages")
	}
	return s.withReactions(ctx, msgs)
}
