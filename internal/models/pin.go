package models

import (
	"time"

	"github.com/google/uuid"
)

type PinnedMessage struct {
	RoomID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID string    `gorm:"size:26;primaryKey"`
	PinnedBy  uuid.UUID `gorm:"type:uuid;not null"`
	PinnedAt  time.Time `gorm:"not null"`

	Message Message `gorm:"foreignKey:MessageID"`
}
