package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationMention  = "mention"
	NotificationDM       = "dm"
	NotificationReply    = "reply"
	NotificationReaction = "reaction"
)

type Notification struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RecipientID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_notification_recipient,priority:1"`
	Type           string     `gorm:"size:16;not null;check:type IN ('mention','dm','reply','reaction')"`
	ActorID        uuid.UUID  `gorm:"type:uuid;not null"`
	MessageID      string     `gorm:"size:26"`
	RoomID         *uuid.UUID `gorm:"type:uuid"`
	DirectThreadID *uuid.UUID `gorm:"type:uuid"`
	Read           bool       `gorm:"not null;default:false;index:idx_notification_recipient,priority:2"`
	ReadAt         *time.Time
	CreatedAt      time.Time `gorm:"index"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
