package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectThread личная переписка двух пользователей. Пара хранится
// упорядоченной (UserAID < UserBID), поэтому на пару приходится одна строка.
type DirectThread struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserAID       uuid.UUID `gorm:"column:user_a_id;type:uuid;not null;uniqueIndex:idx_dm_pair,priority:1"`
	UserBID       uuid.UUID `gorm:"column:user_b_id;type:uuid;not null;uniqueIndex:idx_dm_pair,priority:2"`
	CreatedAt     time.Time
	LastMessageAt *time.Time

	UserA User `gorm:"foreignKey:UserAID"`
	UserB User `gorm:"foreignKey:UserBID"`
}

func (t *DirectThread) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// OrderedPair возвращает a и b в порядке хранения
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

func (t *DirectThread) HasParticipant(userID uuid.UUID) bool {
	return t.UserAID == userID || t.UserBID == userID
}

// Other возвращает второго участника переписки
func (t *DirectThread) Other(userID uuid.UUID) uuid.UUID {
	if t.UserAID == userID {
		return t.UserBID
	}
	return t.UserAID
}
