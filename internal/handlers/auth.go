package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/internal/middleware"
	"github.com/thereayou/livechat/internal/services"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), services.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponse(resp))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), services.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse(resp))
}

// Logout отзывает текущий токен до конца его срока
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.TokenKey)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func authResponse(resp *services.AuthResponse) dto.AuthResponse {
	return dto.AuthResponse{
		User:           dto.NewUserResponse(resp.User, true),
		Token:          resp.Token,
		TokenExpiresAt: resp.ExpiresAt,
	}
}
