package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/internal/services"
)

type DirectHandler struct {
	directs *services.DirectService
	chat    *services.ChatService
}

func NewDirectHandler(directs *services.DirectService, chat *services.ChatService) *DirectHandler {
	return &DirectHandler{directs: directs, chat: chat}
}

// OpenThread возвращает диалог с пользователем, создавая его при первом обращении
func (h *DirectHandler) OpenThread(c *gin.Context) {
	var req dto.MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	thread, err := h.directs.OpenThread(c.Request.Context(), currentActor(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewThreadResponse(thread))
}

func (h *DirectHandler) ListThreads(c *gin.Context) {
	threads, err := h.directs.ListThreads(c.Request.Context(), currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	result := make([]dto.ThreadResponse, len(threads))
	for i := range threads {
		result[i] = dto.NewThreadResponse(&threads[i])
	}
	c.JSON(http.StatusOK, gin.H{"threads": result})
}

func (h *DirectHandler) GetThreadMessages(c *gin.Context) {
	threadID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	msgs, err := h.chat.ListDirectMessages(c.Request.Context(), currentActor(c), threadID, pageQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *DirectHandler) SendThreadMessage(c *gin.Context) {
	threadID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	msg, err := h.chat.AppendDirectMessage(c.Request.Context(), currentActor(c), threadID, messageInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendToUser пишет пользователю напрямую, диалог создаётся лениво
func (h *DirectHandler) SendToUser(c *gin.Context) {
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	msg, err := h.chat.SendDirect(c.Request.Context(), currentActor(c), userID, messageInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
