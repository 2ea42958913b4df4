package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"collab-service/internal/apperr"
	"collab-service/internal/auth"
	"collab-service/internal/middleware"
	"collab-service/internal/models"
	"collab-service/internal/observability"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 4096
)

// MembershipChecker verifies room membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID int) (bool, error)
}

// Broadcaster fans typing signals out to the room.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev models.Event) error
}

// RoomWebSocketHandler serves the per-room realtime channel.
type RoomWebSocketHandler struct {
	hub         *Hub
	rooms       MembershipChecker
	validator   auth.TokenValidator
	broadcaster Broadcaster
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, rooms MembershipChecker, validator auth.TokenValidator, broadcaster Broadcaster) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, rooms: rooms, validator: validator, broadcaster: broadcaster}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame is the only frame clients send: a typing signal.
type inboundFrame struct {
	Type     models.EventKind `json:"type"`
	IsTyping bool             `json:"is_typing"`
}

// Handle upgrades the connection, registers the client and acknowledges the subscription.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id", "code": apperr.KindInvalidArgument})
		return
	}

	ctx, span := otel.Tracer("collab-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.Int("room.id", roomID))
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	userID, err := h.validator.ValidateToken(ctx, token)
	if token == "" || err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": apperr.KindUnauthorized})
		return
	}

	member, err := h.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership", "code": apperr.KindInternal})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member", "code": apperr.KindNotAMember})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		RoomID:      roomID,
		DeviceID:    c.GetHeader("X-Device-Id"),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	cl := newClient(conn, info)
	h.hub.add(roomID, cl)
	observability.IncWSActive(wsKind)
	publishWSEvent(ctx, "ws_connect", info, "")

	if err := cl.writeEvent(models.Event{Kind: models.EventSubscribed, RoomID: roomID, SentAt: time.Now().UTC()}); err != nil {
		log.Printf("websocket ack failed room_id=%d conn_id=%s: %v", roomID, info.ConnID, err)
	}

	go h.serve(context.WithoutCancel(ctx), conn, cl)
}

func (h *RoomWebSocketHandler) serve(ctx context.Context, conn *websocket.Conn, cl *client) {
	info := cl.info
	done := make(chan struct{})
	var closeReason string
	defer func() {
		close(done)
		if h.hub.remove(info.RoomID, cl) {
			publishWSEvent(ctx, "ws_disconnect", info, closeReason)
		}
		observability.DecWSActive(wsKind)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := cl.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != models.EventTyping {
			observability.IncWSEvent(wsKind, "ws_ignored_frame")
			continue
		}
		ev := models.TypingEvent(info.RoomID, info.UserID, frame.IsTyping)
		if err := h.broadcaster.Broadcast(ctx, ev); err != nil {
			log.Printf("typing broadcast failed room_id=%d user_id=%d: %v", info.RoomID, info.UserID, err)
		}
	}
}
