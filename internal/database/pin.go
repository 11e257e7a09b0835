package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/models"
)

// PinMessage закрепляет сообщение в комнате. Повторное закрепление
// возвращает gorm.ErrDuplicatedKey.
func (d *Database) PinMessage(ctx context.Context, pin *models.PinnedMessage) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.PinnedMessage{}).
			Where("room_id = ? AND message_id = ?", pin.RoomID, pin.MessageID).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return gorm.ErrDuplicatedKey
		}
		if pin.PinnedAt.IsZero() {
			pin.PinnedAt = time.Now()
		}
		return tx.Create(pin).Error
	})
}

// UnpinMessage снимает закреп. Если закрепа не было, возвращает gorm.ErrRecordNotFound.
func (d *Database) UnpinMessage(ctx context.Context, roomID uuid.UUID, messageID string) error {
	res := d.conn(ctx).
		Where("room_id = ? AND message_id = ?", roomID, messageID).
		Delete(&models.PinnedMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetPinnedMessages закрепы комнаты, новые первыми
func (d *Database) GetPinnedMessages(ctx context.Context, roomID uuid.UUID) ([]models.PinnedMessage, error) {
	var pins []models.PinnedMessage
	err := d.conn(ctx).
		Preload("Message").
		Preload("Message.Author").
		Preload("Message.Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("room_id = ?", roomID).
		Order("pinned_at DESC").
		Find(&pins).Error
	return pins, err
}
