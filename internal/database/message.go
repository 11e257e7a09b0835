package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/models"
)

func withAuthorAndAttachments(q *gorm.DB) *gorm.DB {
	return q.Preload("Author").Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// SaveMessage сохраняет сообщение вместе с вложениями
func (d *Database) SaveMessage(ctx context.Context, message *models.Message) error {
	for i := range message.Attachments {
		message.Attachments[i].Position = i
	}
	return d.conn(ctx).Create(message).Error
}

func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := withAuthorAndAttachments(d.conn(ctx)).First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// UpdateMessageBody заменяет текст и ставит отметку о редактировании
func (d *Database) UpdateMessageBody(ctx context.Context, id, body string, editedAt time.Time) error {
	res := d.conn(ctx).Model(&models.Message{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{"body": body, "edited": true, "edited_at": editedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TombstoneMessage помечает сообщение удаленным. Id и позиция остаются,
// текст, вложения, реакции и закреп удаляются.
func (d *Database) TombstoneMessage(ctx context.Context, id string) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Message{}).
			Where("id = ?", id).
			Updates(map[string]any{"deleted": true, "body": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Where("message_id = ?", id).Delete(&models.PinnedMessage{}).Error
	})
}

// listPage возвращает последние limit сообщений до before, старые первыми
func listPage(q *gorm.DB, before string, limit int) ([]models.Message, error) {
	if before != "" {
		q = q.Where("id < ?", before)
	}

	var messages []models.Message
	err := withAuthorAndAttachments(q).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Разворачиваем порядок, чтобы старые сообщения были первыми
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetRoomMessages получает сообщения комнаты с пагинацией по курсору before
func (d *Database) GetRoomMessages(ctx context.Context, roomID uuid.UUID, before string, limit int) ([]models.Message, error) {
	return listPage(d.conn(ctx).Where("room_id = ?", roomID), before, limit)
}

func (d *Database) GetDirectMessages(ctx context.Context, threadID uuid.UUID, before string, limit int) ([]models.Message, error) {
	return listPage(d.conn(ctx).Where("direct_thread_id = ?", threadID), before, limit)
}

// GetReplies возвращает ответы в треде по порядку
func (d *Database) GetReplies(ctx context.Context, rootID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := withAuthorAndAttachments(d.conn(ctx)).
		Where("thread_id = ?", rootID).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// SearchMessages ищет по тексту неудаленных сообщений в перечисленных комнатах
func (d *Database) SearchMessages(ctx context.Context, query string, roomIDs []uuid.UUID, limit int) ([]models.Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	var messages []models.Message
	err := withAuthorAndAttachments(d.conn(ctx)).
		Where("deleted = ? AND room_id IN ?", false, roomIDs).
		Where("LOWER(body) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(query))+"%").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// CountRoomMessages считает неудаленные сообщения по комнатам
func (d *Database) CountRoomMessages(ctx context.Context, roomIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		RoomID uuid.UUID
		Count  int64
	}
	err := d.conn(ctx).Model(&models.Message{}).
		Select("room_id, COUNT(*) AS count").
		Where("room_id IN ? AND deleted = ?", roomIDs, false).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.RoomID] = r.Count
	}
	return counts, nil
}

// LatestMessageID возвращает самый большой выданный id или пустую строку
func (d *Database) LatestMessageID(ctx context.Context) (string, error) {
	var ids []string
	err := d.conn(ctx).Model(&models.Message{}).
		Order("id DESC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}
