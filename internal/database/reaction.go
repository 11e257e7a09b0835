package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/models"
)

// ToggleReaction ставит реакцию или снимает ее, если она уже есть.
// Возвращает true, если реакция добавлена.
func (d *Database) ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) (bool, error) {
	added := false
	err := d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Reaction
		err := tx.Where("message_id = ? AND emoji = ? AND user_id = ?", messageID, emoji, userID).
			First(&existing).Error
		switch {
		case err == nil:
			return tx.Delete(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			added = true
			return tx.Create(&models.Reaction{MessageID: messageID, Emoji: emoji, UserID: userID}).Error
		default:
			return err
		}
	})
	return added, err
}

func (d *Database) GetReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := d.conn(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC, id ASC").
		Find(&reactions).Error
	return reactions, err
}

// GetReactionsFor загружает реакции сразу для страницы сообщений
func (d *Database) GetReactionsFor(ctx context.Context, messageIDs []string) (map[string][]models.Reaction, error) {
	out := make(map[string][]models.Reaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	var reactions []models.Reaction
	err := d.conn(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC, id ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	for _, r := range reactions {
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}
