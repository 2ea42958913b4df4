package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collab-service/internal/models"
)

const writeWait = 10 * time.Second

// frameConn is the part of *websocket.Conn the hub writes through.
type frameConn interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one websocket connection subscribed to one room.
// A websocket connection supports a single concurrent writer, so every write goes through mu.
type client struct {
	conn frameConn
	info ConnInfo
	mu   sync.Mutex
}

func newClient(conn frameConn, info ConnInfo) *client {
	return &client{conn: conn, info: info}
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *client) writeEvent(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(payload)
}

// Hub maintains the websocket subscribers of every room on this instance.
type Hub struct {
	rooms map[int]map[*client]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[*client]struct{})}
}

func (h *Hub) add(roomID int, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

// remove reports whether c was still registered.
func (h *Hub) remove(roomID int, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := clients[c]; !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
	return true
}

// RoomSize returns the number of local subscribers of a room.
func (h *Hub) RoomSize(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Stats returns the local subscriber count of every room with at least one subscriber.
func (h *Hub) Stats() map[int]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[int]int, len(h.rooms))
	for id, clients := range h.rooms {
		out[id] = len(clients)
	}
	return out
}

// Deliver writes ev to every local subscriber of its room.
// Clients whose write fails are dropped.
func (h *Hub) Deliver(ev models.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("websocket encode error: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[ev.RoomID]))
	for c := range h.rooms[ev.RoomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			log.Printf("websocket write error room_id=%d conn_id=%s: %v", ev.RoomID, c.info.ConnID, err)
			h.drop(ev.RoomID, c, err)
		}
	}
}

func (h *Hub) drop(roomID int, c *client, err error) {
	if !h.remove(roomID, c) {
		return
	}
	_ = c.conn.Close()
	publishWSEvent(context.Background(), "ws_error", c.info, err.Error())
}
