package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/livechat/internal/handlers/dto"
	"github.com/thereayou/livechat/internal/services"
	"github.com/thereayou/livechat/internal/websocket"
)

type RoomHandler struct {
	rooms *services.RoomService
	hub   *websocket.Hub
}

func NewRoomHandler(rooms *services.RoomService, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{rooms: rooms, hub: hub}
}

// CreateRoom создает новую комнату, доступно только администратору
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), currentActor(c), services.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewRoomResponse(room))
}

// ListRooms комнаты, которые видит пользователь, с числом сообщений
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context(), currentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	result := make([]dto.RoomResponse, len(rooms))
	for i := range rooms {
		result[i] = dto.NewRoomResponse(&rooms[i])
	}
	c.JSON(http.StatusOK, gin.H{"rooms": result})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	room, err := h.rooms.GetRoom(c.Request.Context(), currentActor(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewRoomResponse(room))
}

func (h *RoomHandler) AddMember(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.rooms.AddMember(c.Request.Context(), currentActor(c), roomID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	if err := h.rooms.RemoveMember(c.Request.Context(), currentActor(c), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	// Открытые соединения иначе продолжат получать события комнаты
	h.hub.RemoveUser(roomID, userID)
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) GetRoomMembers(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.rooms.Members(c.Request.Context(), currentActor(c), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	result := make([]dto.UserResponse, len(members))
	for i := range members {
		result[i] = dto.NewUserResponse(&members[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"members": result})
}

// GetPresence кто сейчас онлайн в комнате и кто печатает
func (h *RoomHandler) GetPresence(c *gin.Context) {
	roomID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.rooms.CheckAccess(c.Request.Context(), currentActor(c), roomID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PresenceResponse{
		RoomID: roomID,
		Online: h.hub.GetRoomUsers(roomID),
		Typing: h.hub.Typing().Typing(roomID),
	})
}
