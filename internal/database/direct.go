package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/models"
)

// GetOrCreateDirectThread возвращает переписку двух пользователей,
// создавая ее при первом обращении
func (d *Database) GetOrCreateDirectThread(ctx context.Context, user1ID, user2ID uuid.UUID) (*models.DirectThread, error) {
	a, b := models.OrderedPair(user1ID, user2ID)

	var thread models.DirectThread
	err := d.conn(ctx).Where("user_a_id = ? AND user_b_id = ?", a, b).First(&thread).Error
	if err == nil {
		return &thread, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	thread = models.DirectThread{UserAID: a, UserBID: b}
	if err := d.conn(ctx).Create(&thread).Error; err != nil {
		// Параллельный запрос мог создать переписку раньше нас
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var existing models.DirectThread
			if err := d.conn(ctx).Where("user_a_id = ? AND user_b_id = ?", a, b).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}
	return &thread, nil
}

func (d *Database) GetDirectThread(ctx context.Context, id uuid.UUID) (*models.DirectThread, error) {
	var thread models.DirectThread
	if err := d.conn(ctx).Preload("UserA").Preload("UserB").First(&thread, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetUserDirectThreads переписки пользователя, свежие первыми
func (d *Database) GetUserDirectThreads(ctx context.Context, userID uuid.UUID) ([]models.DirectThread, error) {
	var threads []models.DirectThread
	err := d.conn(ctx).
		Preload("UserA").
		Preload("UserB").
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&threads).Error
	return threads, err
}

func (d *Database) TouchDirectThread(ctx context.Context, id uuid.UUID, at time.Time) error {
	return d.conn(ctx).Model(&models.DirectThread{}).Where("id = ?", id).Update("last_message_at", at).Error
}
