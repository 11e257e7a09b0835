package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/models"
)

type DirectService struct {
	db *database.Database
}

func NewDirectService(db *database.Database) *DirectService {
	return &DirectService{db: db}
}

// OpenThread получает или создаёт переписку с другим пользователем
func (s *DirectService) OpenThread(ctx context.Context, actor Actor, otherID uuid.UUID) (*models.DirectThread, error) {
	if otherID == actor.ID {
		return nil, apperr.Validation("cannot open a direct thread with yourself")
	}
	if _, err := s.db.GetUser(ctx, otherID); err != nil {
		return nil, storeErr(err, "user not found")
	}
	thread, err := s.db.GetOrCreateDirectThread(ctx, actor.ID, otherID)
	if err != nil {
		return nil, storeErr(err, "direct thread")
	}
	return s.GetThread(ctx, actor, thread.ID)
}

func (s *DirectService) ListThreads(ctx context.Context, actor Actor) ([]models.DirectThread, error) {
	threads, err := s.db.GetUserDirectThreads(ctx, actor.ID)
	if err != nil {
		return nil, storeErr(err, "direct threads")
	}
	return threads, nil
}

// GetThread доступен только участникам
func (s *DirectService) GetThread(ctx context.Context, actor Actor, threadID uuid.UUID) (*models.DirectThread, error) {
	thread, err := s.db.GetDirectThread(ctx, threadID)
	if err != nil {
		return nil, storeErr(err, "direct thread not found")
	}
	if !thread.HasParticipant(actor.ID) {
		return nil, apperr.Forbidden("not a participant of this thread")
	}
	return thread, nil
}
