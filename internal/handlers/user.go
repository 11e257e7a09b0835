package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/internal/middleware"
)

const maxUserSearch = 10

type UserHandler struct {
	db *database.Database
}

func NewUserHandler(db *database.Database) *UserHandler {
	return &UserHandler{db: db}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.db.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, apperr.NotFound("user not found"))
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(user, true))
}

// UpdateMe обновляет информацию текущего пользователя
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Username  string `json:"username" binding:"omitempty,min=3,max=50,alphanum"`
		AvatarURL string `json:"avatar_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.db.GetUser(ctx, middleware.UserID(c))
	if err != nil {
		respondError(c, apperr.NotFound("user not found"))
		return
	}

	// Обновляем только переданные поля
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.AvatarURL != "" {
		user.AvatarURL = req.AvatarURL
	}

	if err := h.db.UpdateUser(ctx, user); err != nil {
		respondError(c, apperr.Conflict("username is taken"))
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(user, true))
}

// GetUser возвращает информацию о пользователе по ID
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	user, err := h.db.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, apperr.NotFound("user not found"))
		return
	}
	c.JSON(http.StatusOK, dto.NewUserResponse(user, false))
}

// SearchUsers поиск по префиксу username, используется для подсказок @упоминаний
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimPrefix(strings.TrimSpace(c.Query("q")), "@")
	if query == "" {
		respondError(c, apperr.Validation("query parameter is required"))
		return
	}

	users, err := h.db.SearchUsersByUsername(c.Request.Context(), query, maxUserSearch)
	if err != nil {
		respondError(c, apperr.Internal("failed to search users", err))
		return
	}

	result := make([]dto.UserResponse, len(users))
	for i := range users {
		result[i] = dto.NewUserResponse(&users[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"users": result})
}
