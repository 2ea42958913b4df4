package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/models"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	failing bool
	closed  bool
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error { return nil }

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	c := newClient(&fakeConn{}, ConnInfo{RoomID: 1})

	hub.add(1, c)
	assert.Equal(t, 1, hub.RoomSize(1))

	assert.True(t, hub.remove(1, c))
	assert.Equal(t, 0, hub.RoomSize(1))
	assert.Empty(t, hub.rooms)
	assert.False(t, hub.remove(1, c))
}

func TestHubDeliverOnlyToRoom(t *testing.T) {
	hub := NewHub()
	inRoom := &fakeConn{}
	elsewhere := &fakeConn{}
	hub.add(1, newClient(inRoom, ConnInfo{RoomID: 1}))
	hub.add(2, newClient(elsewhere, ConnInfo{RoomID: 2}))

	hub.Deliver(models.MessageEvent(models.EventMessageInserted, 1, 5))

	require.Len(t, inRoom.frames, 1)
	assert.Empty(t, elsewhere.frames)

	var ev models.Event
	require.NoError(t, json.Unmarshal(inRoom.frames[0], &ev))
	assert.Equal(t, models.EventMessageInserted, ev.Kind)
	assert.Equal(t, 5, ev.MessageID)
}

func TestHubDropsFailingClient(t *testing.T) {
	hub := NewHub()
	healthy := &fakeConn{}
	broken := &fakeConn{failing: true}
	hub.add(1, newClient(healthy, ConnInfo{RoomID: 1}))
	hub.add(1, newClient(broken, ConnInfo{RoomID: 1, ConnectedAt: time.Now()}))

	hub.Deliver(models.TypingEvent(1, 3, true))

	assert.Equal(t, 1, hub.RoomSize(1))
	assert.True(t, broken.closed)
	assert.Len(t, healthy.frames, 1)
}

func TestClientWritesAreSerialized(t *testing.T) {
	conn := &fakeConn{}
	c := newClient(conn, ConnInfo{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.writeEvent(models.TypingEvent(1, 1, true))
		}()
	}
	wg.Wait()
	assert.Len(t, conn.frames, 50)
}

func TestHubStats(t *testing.T) {
	hub := NewHub()
	hub.add(1, newClient(&fakeConn{}, ConnInfo{RoomID: 1}))
	hub.add(1, newClient(&fakeConn{}, ConnInfo{RoomID: 1}))
	hub.add(4, newClient(&fakeConn{}, ConnInfo{RoomID: 4}))

	assert.Equal(t, map[int]int{1: 2, 4: 1}, hub.Stats())
	assert.Zero(t, ConnInfo{}.lifetime())
}
