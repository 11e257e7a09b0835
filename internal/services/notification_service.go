package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/logger"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

const maxNotificationPage = 100

type NotificationService struct {
	db     *database.Database
	fanout Fanout
	log    zerolog.Logger
	now    func() time.Time
}

func NewNotificationService(db *database.Database, fanout Fanout) *NotificationService {
	return &NotificationService{
		db:     db,
		fanout: fanout,
		log:    logger.L().With().Str("component", "notifications").Logger(),
		now:    time.Now,
	}
}

// notify сохраняет уведомления и отправляет их получателям. Ошибки только
// логируются: действие, которое вызвало уведомление, уже выполнено.
func (s *NotificationService) notify(ctx context.Context, notifications []models.Notification) {
	if len(notifications) == 0 {
		return
	}
	if err := s.db.CreateNotifications(ctx, notifications); err != nil {
		s.log.Error().Err(err).Int("count", len(notifications)).Msg("failed to save notifications")
		return
	}
	for i := range notifications {
		n := &notifications[i]
		s.fanout.ToUser(n.RecipientID, protocol.NotificationCreated{Notification: toNotification(n)})
	}
}

func (s *NotificationService) List(ctx context.Context, actor Actor, unreadOnly bool, limit int) ([]protocol.Notification, error) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	rows, err := s.db.GetNotifications(ctx, actor.ID, unreadOnly, limit)
	if err != nil {
		return nil, storeErr(err, "notifications")
	}
	out := make([]protocol.Notification, len(rows))
	for i := range rows {
		out[i] = toNotification(&rows[i])
	}
	return out, nil
}

// MarkRead отмечает уведомление прочитанным. Отмечать может только получатель.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id uuid.UUID) error {
	n, err := s.db.GetNotification(ctx, id)
	if err != nil {
		return storeErr(err, "notification not found")
	}
	if n.RecipientID != actor.ID {
		return apperr.Forbidden("not your notification")
	}
	if err := s.db.MarkNotificationRead(ctx, id, s.now()); err != nil {
		return storeErr(err, "notification")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor Actor) (int64, error) {
	n, err := s.db.MarkAllNotificationsRead(ctx, actor.ID, s.now())
	if err != nil {
		return 0, storeErr(err, "notifications")
	}
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	n, err := s.db.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, storeErr(err, "notifications")
	}
	return n, nil
}

// PurgeRead удаляет прочитанные уведомления старше ttl
func (s *NotificationService) PurgeRead(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.db.PurgeReadNotifications(ctx, s.now().Add(-ttl))
}
