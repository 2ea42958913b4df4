package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/models"
)

// PresenceHandler serves presence reads and updates.
type PresenceHandler struct {
	presence PresenceService
}

func NewPresenceHandler(presence PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// SetStatus records the caller's status and current room.
func (h *PresenceHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status        models.PresenceStatus `json:"status" binding:"required"`
		CurrentRoomID *int                  `json:"current_room_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.presence.SetStatus(requestContext(c), callerID(c), req.Status, req.CurrentRoomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": p})
}

// Heartbeat keeps the caller's presence live.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	p, err := h.presence.Touch(requestContext(c), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": p})
}

// GetPresence returns another user's presence.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, ok := intParam(c, "user_id")
	if !ok {
		return
	}
	p, err := h.presence.Get(requestContext(c), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": p})
}
