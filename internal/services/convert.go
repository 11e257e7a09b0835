package services

import (
	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

func toUserInfo(u *models.User) *protocol.UserInfo {
	if u == nil || u.ID == uuid.Nil {
		return nil
	}
	return &protocol.UserInfo{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

func toReactionGroups(reactions []models.Reaction) []protocol.ReactionGroup {
	groups := models.GroupReactions(reactions)
	out := make([]protocol.ReactionGroup, len(groups))
	for i, g := range groups {
		out[i] = protocol.ReactionGroup{Emoji: g.Emoji, Count: g.Count, UserIDs: g.UserIDs}
	}
	return out
}

// toMessage собирает запись для клиента. Удалённое сообщение всегда отдаётся
// надгробием, даже если в строке что-то осталось.
func toMessage(m *models.Message, reactions []models.Reaction) protocol.Message {
	out := protocol.Message{
		ID:             m.ID,
		RoomID:         m.RoomID,
		DirectThreadID: m.DirectThreadID,
		AuthorID:       m.AuthorID,
		Author:         toUserInfo(&m.Author),
		Body:           m.Body,
		ThreadID:       m.ThreadID,
		CreatedAt:      m.CreatedAt,
		Edited:         m.Edited,
		EditedAt:       m.EditedAt,
	}
	if len(m.Attachments) > 0 {
		out.Attachments = make([]protocol.Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			out.Attachments[i] = protocol.Attachment{URL: a.URL, Name: a.Name, ContentType: a.ContentType, Size: a.Size}
		}
	}
	if len(reactions) > 0 {
		out.Reactions = toReactionGroups(reactions)
	}
	if m.Deleted {
		return out.Tombstone()
	}
	return out
}

func toMessages(msgs []models.Message, reactions map[string][]models.Reaction) []protocol.Message {
	out := make([]protocol.Message, len(msgs))
	for i := range msgs {
		out[i] = toMessage(&msgs[i], reactions[msgs[i].ID])
	}
	return out
}

func toNotification(n *models.Notification) protocol.Notification {
	return protocol.Notification{
		ID:             n.ID,
		Type:           n.Type,
		ActorID:        n.ActorID,
		MessageID:      n.MessageID,
		RoomID:         n.RoomID,
		DirectThreadID: n.DirectThreadID,
		Read:           n.Read,
		CreatedAt:      n.CreatedAt,
	}
}
