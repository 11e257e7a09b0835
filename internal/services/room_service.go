package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/models"
)

type RoomService struct {
	db *database.Database
}

func NewRoomService(db *database.Database) *RoomService {
	return &RoomService{db: db}
}

type CreateRoomInput struct {
	Name        string
	Description string
	Visibility  string
}

// CreateRoom создаёт комнату. Только для администратора.
func (s *RoomService) CreateRoom(ctx context.Context, actor Actor, in CreateRoomInput) (*models.Room, error) {
	if !actor.IsAdmin {
		return nil, apperr.Forbidden("only administrators can create rooms")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("room name is required")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if visibility != models.VisibilityPublic && visibility != models.VisibilityPrivate {
		return nil, apperr.Validation("visibility must be public or private")
	}

	room := &models.Room{
		Name:        name,
		Description: in.Description,
		Visibility:  visibility,
		CreatedBy:   actor.ID,
	}
	if err := s.db.CreateRoom(ctx, room); err != nil {
		return nil, storeErr(err, "room "+name)
	}
	return room, nil
}

// ListRooms возвращает видимые пользователю комнаты с числом сообщений
func (s *RoomService) ListRooms(ctx context.Context, actor Actor) ([]models.Room, error) {
	rooms, err := s.db.GetVisibleRooms(ctx, actor.ID, actor.IsAdmin)
	if err != nil {
		return nil, storeErr(err, "rooms")
	}

	ids := make([]uuid.UUID, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}
	counts, err := s.db.CountRoomMessages(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "rooms")
	}
	for i := range rooms {
		rooms[i].MessageCount = counts[rooms[i].ID]
	}
	return rooms, nil
}

func (s *RoomService) GetRoom(ctx context.Context, actor Actor, roomID uuid.UUID) (*models.Room, error) {
	room, err := s.CheckAccess(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	counts, err := s.db.CountRoomMessages(ctx, []uuid.UUID{roomID})
	if err != nil {
		return nil, storeErr(err, "room")
	}
	room.MessageCount = counts[roomID]
	return room, nil
}

// CheckAccess возвращает комнату, если пользователь может её читать и писать в неё
func (s *RoomService) CheckAccess(ctx context.Context, actor Actor, roomID uuid.UUID) (*models.Room, error) {
	room, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "room not found")
	}
	if room.IsPublic() || actor.IsAdmin {
		return room, nil
	}
	member, err := s.db.IsRoomMember(ctx, roomID, actor.ID)
	if err != nil {
		return nil, storeErr(err, "room")
	}
	if !member {
		return nil, apperr.Forbidden("no access to this room")
	}
	return room, nil
}

// AddMember добавляет пользователя в приватную комнату. Только для администратора.
func (s *RoomService) AddMember(ctx context.Context, actor Actor, roomID, userID uuid.UUID) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("only administrators can manage members")
	}
	if err := s.db.AddUserToRoom(ctx, userID, roomID); err != nil {
		return storeErr(err, "room or user not found")
	}
	return nil
}

func (s *RoomService) RemoveMember(ctx context.Context, actor Actor, roomID, userID uuid.UUID) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("only administrators can manage members")
	}
	if err := s.db.RemoveUserFromRoom(ctx, userID, roomID); err != nil {
		return storeErr(err, "room or user not found")
	}
	return nil
}

func (s *RoomService) Members(ctx context.Context, actor Actor, roomID uuid.UUID) ([]models.User, error) {
	if _, err := s.CheckAccess(ctx, actor, roomID); err != nil {
		return nil, err
	}
	members, err := s.db.GetRoomMembers(ctx, roomID)
	if err != nil {
		return nil, storeErr(err, "room")
	}
	return members, nil
}

// canSee используется при упоминаниях: уведомлять только тех, кто видит комнату
func (s *RoomService) canSee(ctx context.Context, room *models.Room, user *models.User) bool {
	if room.IsPublic() || user.IsAdmin {
		return true
	}
	member, err := s.db.IsRoomMember(ctx, room.ID, user.ID)
	return err == nil && member
}
