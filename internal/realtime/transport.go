package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collab-service/internal/models"
)

const writeWait = 5 * time.Second

// Conn is one live room channel.
type Conn interface {
	// ReadEvent blocks until the next event or a transport failure.
	ReadEvent() (models.Event, error)
	SendTyping(isTyping bool) error
	Close() error
}

// Transport opens room channels.
type Transport interface {
	Dial(ctx context.Context, roomID int) (Conn, error)
}

// WebSocketTransport dials /ws/rooms/:room_id on the collab server.
type WebSocketTransport struct {
	base   string
	token  string
	dialer *websocket.Dialer
}

// NewWebSocketTransport accepts an http(s) or ws(s) base URL.
func NewWebSocketTransport(baseURL, token string) *WebSocketTransport {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &WebSocketTransport{
		base:   base,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
	}
}

func (t *WebSocketTransport) Dial(ctx context.Context, roomID int) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.token)
	conn, resp, err := t.dialer.DialContext(ctx, t.base+"/ws/rooms/"+strconv.Itoa(roomID), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial room %d: status %d: %w", roomID, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial room %d: %w", roomID, err)
	}
	return &wsConn{conn: conn}, nil
}

type typingFrame struct {
	Type     models.EventKind `json:"type"`
	IsTyping bool             `json:"is_typing"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) ReadEvent() (models.Event, error) {
	var ev models.Event
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

func (c *wsConn) SendTyping(isTyping bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(typingFrame{Type: models.EventTyping, IsTyping: isTyping})
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
