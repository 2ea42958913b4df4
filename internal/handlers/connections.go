package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/models"
)

// ConnectionHandler serves the connection request endpoints.
type ConnectionHandler struct {
	connections ConnectionService
}

func NewConnectionHandler(connections ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// ListConnections returns the caller's connections, optionally filtered by status.
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	state := models.ConnectionState(c.Query("status"))
	list, err := h.connections.List(requestContext(c), callerID(c), state)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": list})
}

// SendRequest asks another user to connect.
func (h *ConnectionHandler) SendRequest(c *gin.Context) {
	var req struct {
		UserID         int                   `json:"user_id" binding:"required"`
		ConnectionType models.ConnectionType `json:"connection_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	conn, err := h.connections.SendRequest(requestContext(c), callerID(c), req.UserID, req.ConnectionType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"connection": conn.ViewFor(callerID(c))})
}

// Respond accepts, declines or blocks a received request.
func (h *ConnectionHandler) Respond(c *gin.Context) {
	connectionID, ok := intParam(c, "connection_id")
	if !ok {
		return
	}
	var req struct {
		Decision models.ConnectionState `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	conn, err := h.connections.Respond(requestContext(c), callerID(c), connectionID, req.Decision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": conn.ViewFor(callerID(c))})
}

// Cancel withdraws the caller's pending request.
func (h *ConnectionHandler) Cancel(c *gin.Context) {
	connectionID, ok := intParam(c, "connection_id")
	if !ok {
		return
	}
	conn, err := h.connections.Cancel(requestContext(c), callerID(c), connectionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": conn.ViewFor(callerID(c))})
}

// Status reports the caller's status with another user.
func (h *ConnectionHandler) Status(c *gin.Context) {
	other, ok := intParam(c, "user_id")
	if !ok {
		return
	}
	view, err := h.connections.Status(requestContext(c), callerID(c), other)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
