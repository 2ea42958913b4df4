package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/rooms"
)

// RoomHandler serves the room directory.
type RoomHandler struct {
	rooms RoomService
}

func NewRoomHandler(rooms RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// ListRooms returns the caller's rooms, most recently active first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	list, err := h.rooms.ListRooms(requestContext(c), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": list})
}

// GetRoom returns a single room.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.Get(requestContext(c), callerID(c), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// CreateGroup creates a group or collaboration room owned by the caller.
func (h *RoomHandler) CreateGroup(c *gin.Context) {
	var req rooms.CreateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	room, err := h.rooms.CreateGroup(requestContext(c), callerID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// OpenDirect creates or returns the direct room with another user.
func (h *RoomHandler) OpenDirect(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	room, err := h.rooms.GetOrCreateDirect(requestContext(c), callerID(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// MarkRead clears the caller's unread count.
func (h *RoomHandler) MarkRead(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.MarkRead(requestContext(c), callerID(c), roomID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMembers invites connected users into a shared room.
func (h *RoomHandler) AddMembers(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		UserIDs []int `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	added, err := h.rooms.AddMembers(requestContext(c), callerID(c), roomID, req.UserIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}
