package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

type Room struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"uniqueIndex;not null"`
	Description string
	Visibility  string    `gorm:"not null;default:'public';check:visibility IN ('public','private')"`
	CreatedBy   uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time

	// Связи
	Members []User `gorm:"many2many:room_members"`

	// Считается при чтении, не хранится
	MessageCount int64 `gorm:"-"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Room) IsPublic() bool {
	return r.Visibility == VisibilityPublic
}
