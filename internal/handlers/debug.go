package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/telemetry"
)

// RoomStats reports local websocket subscribers per room. *ws.Hub satisfies it.
type RoomStats interface {
	Stats() map[int]int
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, rooms RoomStats, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.POST("/audit", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured", "code": "unavailable"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "debug audit probe", requestIDFromContext(c), userIDFromContext(c))
		c.Status(http.StatusAccepted)
	})

	debug.GET("/rooms", func(c *gin.Context) {
		stats := rooms.Stats()
		total := 0
		for _, n := range stats {
			total += n
		}
		c.JSON(http.StatusOK, gin.H{"rooms": stats, "subscribers": total})
	})
}
