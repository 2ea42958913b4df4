package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/models"
)

// MessageHandler serves room message logs.
type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// ListMessages returns one page, oldest first. offset counts back from the newest message.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}

	page, err := h.messages.Page(requestContext(c), callerID(c), roomID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": page})
}

// PostMessage appends a message to the room.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	var req models.AppendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.RoomID = roomID

	msg, err := h.messages.Append(requestContext(c), callerID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// GetMessage returns one hydrated message.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	messageID, ok := intParam(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.messages.Get(requestContext(c), callerID(c), roomID, messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// EditMessage replaces the content of the caller's message.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		return
	}
	messageID, ok := intParam(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.messages.Edit(requestContext(c), callerID(c), roomID, messageID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}
