package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/models"
)

func (d *Database) CreateRoom(ctx context.Context, room *models.Room) error {
	return d.conn(ctx).Create(room).Error
}

func (d *Database) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.conn(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// visibleRooms ограничивает выборку публичными комнатами и приватными,
// в которых пользователь состоит
func visibleRooms(q *gorm.DB, userID uuid.UUID) *gorm.DB {
	return q.Where(
		"visibility = ? OR id IN (?)",
		models.VisibilityPublic,
		q.Session(&gorm.Session{NewDB: true}).
			Table("room_members").
			Select("room_id").
			Where("user_id = ?", userID),
	)
}

// GetVisibleRooms получает список комнат, доступных пользователю.
// Администратор видит все комнаты.
func (d *Database) GetVisibleRooms(ctx context.Context, userID uuid.UUID, all bool) ([]models.Room, error) {
	q := d.conn(ctx).Model(&models.Room{})
	if !all {
		q = visibleRooms(q, userID)
	}

	var rooms []models.Room
	if err := q.Order("name ASC").Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (d *Database) GetVisibleRoomIDs(ctx context.Context, userID uuid.UUID, all bool) ([]uuid.UUID, error) {
	q := d.conn(ctx).Model(&models.Room{})
	if !all {
		q = visibleRooms(q, userID)
	}

	var ids []uuid.UUID
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (d *Database) IsRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var count int64
	err := d.conn(ctx).Table("room_members").
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) AddUserToRoom(ctx context.Context, userID, roomID uuid.UUID) error {
	var user models.User
	var room models.Room

	if err := d.conn(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return err
	}
	if err := d.conn(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return err
	}

	return d.conn(ctx).Model(&room).Association("Members").Append(&user)
}

func (d *Database) RemoveUserFromRoom(ctx context.Context, userID, roomID uuid.UUID) error {
	room := models.Room{ID: roomID}
	user := models.User{ID: userID}
	return d.conn(ctx).Model(&room).Association("Members").Delete(&user)
}

func (d *Database) GetRoomMembers(ctx context.Context, roomID uuid.UUID) ([]models.User, error) {
	room := models.Room{ID: roomID}
	var members []models.User
	err := d.conn(ctx).Model(&room).Association("Members").Find(&members)
	return members, err
}
