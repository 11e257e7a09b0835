package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reaction уникальна для тройки (message, emoji, user)
type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID string    `gorm:"size:26;not null;uniqueIndex:idx_reaction_tuple,priority:1"`
	Emoji     string    `gorm:"size:64;not null;uniqueIndex:idx_reaction_tuple,priority:2"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_tuple,priority:3"`
	CreatedAt time.Time
}

func (r *Reaction) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ReactionGroup агрегат по одному эмодзи
type ReactionGroup struct {
	Emoji   string
	Count   int
	UserIDs []uuid.UUID
}

// GroupReactions группирует реакции в порядке первого появления эмодзи.
// На вход ожидаются реакции от старых к новым.
func GroupReactions(reactions []Reaction) []ReactionGroup {
	groups := make([]ReactionGroup, 0)
	index := make(map[string]int)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}
	return groups
}
