package models

import (
	"time"

	"github.com/google/uuid"
)

// Message принадлежит либо комнате, либо личной переписке. ID это ULID из
// idgen, поэтому сортировка по id совпадает с порядком создания.
type Message struct {
	ID             string     `gorm:"primaryKey;size:26"`
	RoomID         *uuid.UUID `gorm:"type:uuid;index"`
	DirectThreadID *uuid.UUID `gorm:"type:uuid;index"`
	AuthorID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Body           string     `gorm:"type:text;not null;default:''"`
	ThreadID       *string    `gorm:"size:26;index"`
	Edited         bool       `gorm:"not null;default:false"`
	EditedAt       *time.Time
	Deleted        bool `gorm:"not null;default:false"`
	CreatedAt      time.Time

	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	Author      User         `gorm:"foreignKey:AuthorID"`
}

// Attachment ссылка на внешний файл. Position сохраняет порядок автора.
type Attachment struct {
	ID          uint   `gorm:"primaryKey"`
	MessageID   string `gorm:"size:26;not null;index"`
	Position    int    `gorm:"not null"`
	URL         string `gorm:"not null"`
	Name        string
	ContentType string
	Size        int64
}
