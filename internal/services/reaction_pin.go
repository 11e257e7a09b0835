package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

const maxEmojiLength = 32

// ToggleReaction ставит реакцию, а повторный вызов с тем же эмодзи её снимает.
// Возвращает агрегат реакций сообщения после изменения.
func (s *ChatService) ToggleReaction(ctx context.Context, actor Actor, messageID, emoji string) ([]protocol.ReactionGroup, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return nil, apperr.Validation("invalid emoji")
	}
	msg, err := s.loadForChange(ctx, actor, messageID)
	if err != nil {
		return nil, err
	}

	var (
		groups []protocol.ReactionGroup
		added  bool
	)
	err = s.publish(ctx, msg, func() (protocol.ServerEvent, error) {
		var err error
		added, err = s.db.ToggleReaction(ctx, messageID, actor.ID, emoji)
		if err != nil {
			return nil, storeErr(err, "reaction")
		}
		reactions, err := s.db.GetReactions(ctx, messageID)
		if err != nil {
			return nil, storeErr(err, "reactions")
		}
		groups = toReactionGroups(reactions)
		return protocol.ReactionUpdated{MessageID: messageID, RoomID: msg.RoomID, Reactions: groups}, nil
	})
	if err != nil {
		return nil, err
	}

	if added && msg.AuthorID != actor.ID {
		s.notifications.notify(ctx, []models.Notification{{
			RecipientID:    msg.AuthorID,
			Type:           models.NotificationReaction,
			ActorID:        actor.ID,
			MessageID:      messageID,
			RoomID:         msg.RoomID,
			DirectThreadID: msg.DirectThreadID,
		}})
	}
	return groups, nil
}

func (s *ChatService) Reactions(ctx context.Context, actor Actor, messageID string) ([]protocol.ReactionGroup, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "message not found")
	}
	if err := s.checkMessageAccess(ctx, actor, msg); err != nil {
		return nil, err
	}
	if msg.Deleted {
		return []protocol.ReactionGroup{}, nil
	}
	reactions, err := s.db.GetReactions(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, "reactions")
	}
	return toReactionGroups(reactions), nil
}

// PinnedMessage закреп вместе с самим сообщением
type PinnedMessage struct {
	RoomID   uuid.UUID        `json:"room_id"`
	PinnedBy uuid.UUID        `json:"pinned_by"`
	PinnedAt time.Time        `json:"pinned_at"`
	Message  protocol.Message `json:"message"`
}

func (s *ChatService) pinTarget(ctx context.Context, actor Actor, roomID uuid.UUID, messageID string) error {
	msg, err := s.loadForChange(ctx, actor, messageID)
	if err != nil {
		return err
	}
	if msg.RoomID == nil || *msg.RoomID != roomID {
		return apperr.NotFound("message not found in this room")
	}
	return nil
}

// PinMessage закрепляет сообщение в комнате. Уже закреплённое даёт ConflictError.
func (s *ChatService) PinMessage(ctx context.Context, actor Actor, roomID uuid.UUID, messageID string) (*protocol.MessagePinned, error) {
	if err := s.pinTarget(ctx, actor, roomID, messageID); err != nil {
		return nil, err
	}

	var ev protocol.MessagePinned
	err := s.fanout.Room(roomID, func() (protocol.ServerEvent, error) {
		pin := &models.PinnedMessage{RoomID: roomID, MessageID: messageID, PinnedBy: actor.ID, PinnedAt: s.now()}
		if err := s.db.PinMessage(ctx, pin); err != nil {
			return nil, storeErr(err, "pin")
		}
		ev = protocol.MessagePinned{RoomID: roomID, MessageID: messageID, PinnedBy: actor.ID, PinnedAt: pin.PinnedAt}
		return ev, nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil, apperr.Conflict("message is already pinned")
		}
		return nil, err
	}
	return &ev, nil
}

// UnpinMessage снимает закреп. Незакреплённое сообщение даёт ConflictError.
func (s *ChatService) UnpinMessage(ctx context.Context, actor Actor, roomID uuid.UUID, messageID string) error {
	if _, err := s.rooms.CheckAccess(ctx, actor, roomID); err != nil {
		return err
	}
	return s.fanout.Room(roomID, func() (protocol.ServerEvent, error) {
		if err := s.db.UnpinMessage(ctx, roomID, messageID); err != nil {
			if kind := apperr.KindOf(storeErr(err, "pin")); kind == apperr.KindNotFound {
				return nil, apperr.Conflict("message is not pinned")
			}
			return nil, storeErr(err, "pin")
		}
		return protocol.MessageUnpinned{RoomID: roomID, MessageID: messageID}, nil
	})
}

func (s *ChatService) ListPins(ctx context.Context, actor Actor, roomID uuid.UUID) ([]PinnedMessage, error) {
	if _, err := s.rooms.CheckAccess(ctx, actor, roomID); err != nil {
		return nil, err
	}
	pins, err := s.db.GetPinnedMessages(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "pins")
	}
	out := make([]PinnedMessage, len(pins))
	for i := range pins {
		out[i] = PinnedMessage{
			RoomID:   pins[i].RoomID,
			PinnedBy: pins[i].PinnedBy,
			PinnedAt: pins[i].PinnedAt,
			Message:  toMessage(&pins[i].Message, nil),
		}
	}
	return out, nil
}
