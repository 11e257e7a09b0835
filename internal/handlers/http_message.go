package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/internal/services"
)

type HTTPMessageHandler struct {
	chat *services.ChatService
}

func NewHTTPMessageHandler(chat *services.ChatService) *HTTPMessageHandler {
	return &HTTPMessageHandler{chat: chat}
}

// GetRoomMessages получает историю сообщений комнаты, старые первыми
func (h *HTTPMessageHandler) GetRoomMessages(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	msgs, err := h.chat.ListMessages(c.Request.Context(), currentActor(c), roomID, pageQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage отправляет сообщение в комнату. Рассылка идёт тем же путём,
// что и у new-message из сокета.
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	msg, err := h.chat.AppendMessage(c.Request.Context(), currentActor(c), roomID, messageInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *HTTPMessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.chat.GetMessage(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// UpdateMessage редактирует сообщение, может только автор
func (h *HTTPMessageHandler) UpdateMessage(c *gin.Context) {
	var req dto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	msg, err := h.chat.EditMessage(c.Request.Context(), currentActor(c), c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage удаляет сообщение. ?admin=true позволяет администратору
// удалить чужое сообщение.
func (h *HTTPMessageHandler) DeleteMessage(c *gin.Context) {
	override := c.Query("admin") == "true"
	if err := h.chat.DeleteMessage(c.Request.Context(), currentActor(c), c.Param("id"), override); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPMessageHandler) GetReplies(c *gin.Context) {
	replies, err := h.chat.ListReplies(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": replies})
}

func (h *HTTPMessageHandler) GetReactions(c *gin.Context) {
	groups, err := h.chat.Reactions(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("id"), "reactions": groups})
}

// ToggleReaction повторная реакция тем же эмодзи снимает её
func (h *HTTPMessageHandler) ToggleReaction(c *gin.Context) {
	var req dto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	groups, err := h.chat.ToggleReaction(c.Request.Context(), currentActor(c), c.Param("id"), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("id"), "reactions": groups})
}

func (h *HTTPMessageHandler) ListPins(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	pins, err := h.chat.ListPins(c.Request.Context(), currentActor(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins})
}

func (h *HTTPMessageHandler) PinMessage(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	pin, err := h.chat.PinMessage(c.Request.Context(), currentActor(c), roomID, req.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pin)
}

func (h *HTTPMessageHandler) UnpinMessage(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.chat.UnpinMessage(c.Request.Context(), currentActor(c), roomID, c.Param("messageId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search поиск по тексту сообщений в видимых комнатах
func (h *HTTPMessageHandler) Search(c *gin.Context) {
	var roomID *uuid.UUID
	if raw := c.Query("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperr.Validation("invalid room_id"))
			return
		}
		roomID = &id
	}
	msgs, err := h.chat.Search(c.Request.Context(), currentActor(c), c.Query("q"), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func messageInput(req dto.SendMessageRequest) services.NewMessageInput {
	return services.NewMessageInput{Body: req.Body, Attachments: req.Attachments, ThreadID: req.ThreadID}
}
