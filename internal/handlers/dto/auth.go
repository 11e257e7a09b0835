package dto

import (
	"time"

	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/protocol"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	User           UserResponse `json:"user"`
	Token          string       `json:"token"`
	TokenExpiresAt time.Time    `json:"tokenExpiresAt"`
}

type UserResponse struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	IsAdmin    bool      `json:"is_admin"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NewUserResponse email отдаётся только самому пользователю
func NewUserResponse(u *models.User, withEmail bool) UserResponse {
	resp := UserResponse{
		ID:         u.ID.String(),
		Username:   u.Username,
		AvatarURL:  u.AvatarURL,
		IsAdmin:    u.IsAdmin,
		LastSeenAt: u.LastSeenAt,
	}
	if withEmail {
		resp.Email = u.Email
	}
	return resp
}

func NewUserInfo(u *models.User) protocol.UserInfo {
	return protocol.UserInfo{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}
