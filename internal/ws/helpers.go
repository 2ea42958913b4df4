package ws

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"collab-service/internal/observability"
)

const (
	wsKind       = "room"
	wsRoutingKey = "ws_events.rooms"
)

// ConnInfo identifies one websocket subscription for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	RoomID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) lifetime() time.Duration {
	if i.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(i.ConnectedAt)
}

func newConnID() string {
	return ulid.Make().String()
}

// publishWSEvent emits a connection lifecycle event and counts it.
func publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(wsKind, event)
	duration := int64(0)
	if event != "ws_connect" {
		duration = info.lifetime().Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"resource_id": info.RoomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
