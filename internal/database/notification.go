package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/models"
)

func (d *Database) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return d.conn(ctx).Create(&notifications).Error
}

func (d *Database) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := d.conn(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotifications уведомления получателя, новые первыми
func (d *Database) GetNotifications(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := d.conn(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}

	var notifications []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

func (d *Database) MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	return d.conn(ctx).Model(&models.Notification{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]any{"read": true, "read_at": at}).Error
}

// MarkAllNotificationsRead возвращает число отмеченных уведомлений
func (d *Database) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	res := d.conn(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]any{"read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// PurgeReadNotifications удаляет прочитанные уведомления старше cutoff
func (d *Database) PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.conn(ctx).
		Where("read = ? AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// CountUnread считает непрочитанные уведомления
func (d *Database) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := d.conn(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

