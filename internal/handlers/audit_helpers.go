package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"collab-service/internal/middleware"
	"collab-service/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// requestContext carries the request id into service calls for audit envelopes.
func requestContext(c *gin.Context) context.Context {
	return telemetry.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}

func callerID(c *gin.Context) int {
	return c.GetInt(middleware.UserIDKey)
}

func userIDFromContext(c *gin.Context) *string {
	if id := callerID(c); id != 0 {
		value := strconv.Itoa(id)
		return &value
	}
	return nil
}
