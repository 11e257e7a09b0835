package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/livechat/internal/models"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	return d.conn(ctx).Create(user).Error
}

func (d *Database) UpdateUser(ctx context.Context, user *models.User) error {
	return d.conn(ctx).Save(user).Error
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := d.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := d.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUsersByUsernames ищет пользователей по username без учета регистра
func (d *Database) FindUsersByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(usernames))
	for i, u := range usernames {
		lowered[i] = strings.ToLower(u)
	}
	var users []models.User
	err := d.conn(ctx).Where("LOWER(username) IN ?", lowered).Find(&users).Error
	return users, err
}

// SearchUsersByUsername поиск пользователей по началу username
func (d *Database) SearchUsersByUsername(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	var users []models.User
	err := d.conn(ctx).
		Where("LOWER(username) LIKE ? ESCAPE '\\'", escapeLike(strings.ToLower(prefix))+"%").
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (d *Database) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	return d.conn(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_seen_at", time.Now()).Error
}

// likeEscaper экранирует шаблонные символы LIKE, парный к ESCAPE '\'
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
