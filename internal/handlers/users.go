package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserHandler serves discovery.
type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Search finds users matching q.
func (h *UserHandler) Search(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	found, err := h.users.Search(requestContext(c), callerID(c), c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": found})
}
