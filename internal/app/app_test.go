package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/apperr"
	"collab-service/internal/client"
	"collab-service/internal/config"
	"collab-service/internal/models"
	"collab-service/internal/realtime"
	"collab-service/internal/session"
)

type harness struct {
	srv *httptest.Server
	app *App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		Port:               "0",
		GRPCPort:           "0",
		Store:              config.StoreMemory,
		JWTSecret:          "test-secret",
		JWTIssuer:          "collab-test",
		ServiceName:        "collab-test",
		Environment:        "test",
		PresenceStaleAfter: 90 * time.Second,
	}
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	for id, name := range map[int]string{1: "ana", 2: "ben", 3: "cy"} {
		a.Memory().PutProfile(models.Profile{UserID: id, Username: name, DisplayName: name})
	}
	srv := httptest.NewServer(a.Router())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &harness{srv: srv, app: a}
}

func (h *harness) token(t *testing.T, userID int) string {
	t.Helper()
	tok, err := h.app.Tokens().IssueToken(userID)
	require.NoError(t, err)
	return tok
}

func (h *harness) client(t *testing.T, userID int) *client.Client {
	return client.New(h.srv.URL, h.token(t, userID))
}

func connect(t *testing.T, ctx context.Context, from, to *client.Client, toID, fromID int) {
	t.Helper()
	req, err := from.SendRequest(ctx, toID, models.ConnectionFriend)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, req.Status)
	assert.True(t, req.IsRequester)

	accepted, err := to.Respond(ctx, req.ID, models.StateAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.StateAccepted, accepted.Status)
	assert.Equal(t, fromID, accepted.OtherUserID)
}

func TestDirectConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ana, ben, cy := h.client(t, 1), h.client(t, 2), h.client(t, 3)

	_, err := ana.OpenDirect(ctx, 2)
	require.ErrorIs(t, err, apperr.ErrNotConnected)

	connect(t, ctx, ana, ben, 2, 1)

	room, err := ana.OpenDirect(ctx, 2)
	require.NoError(t, err)
	again, err := ben.OpenDirect(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
	assert.Equal(t, models.RoomDirect, room.Type)

	hello, err := ana.Append(ctx, models.AppendInput{RoomID: room.ID, Content: "hello"})
	require.NoError(t, err)
	_, err = ben.Append(ctx, models.AppendInput{RoomID: room.ID, Content: "world", ReplyTo: &hello.ID})
	require.NoError(t, err)

	page, err := ben.Page(ctx, room.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "hello", page[0].Content)
	assert.Equal(t, "world", page[1].Content)
	require.NotNil(t, page[1].ReplyTo)
	assert.Equal(t, hello.ID, *page[1].ReplyTo)
	assert.Equal(t, "ana", page[0].SenderName)

	view, err := ana.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.UnreadCount)
	require.NoError(t, ana.MarkRead(ctx, room.ID))
	view, err = ana.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.UnreadCount)

	_, err = cy.Page(ctx, room.ID, 10, 0)
	assert.ErrorIs(t, err, apperr.ErrNotAMember)

	_, err = ana.Append(ctx, models.AppendInput{RoomID: room.ID, Content: "   "})
	assert.ErrorIs(t, err, apperr.ErrEmptyContent)
}

func TestConnectionStatusAcrossUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ana, ben := h.client(t, 1), h.client(t, 2)

	req, err := ana.SendRequest(ctx, 2, models.ConnectionFriend)
	require.NoError(t, err)

	_, err = ana.SendRequest(ctx, 2, models.ConnectionFriend)
	assert.ErrorIs(t, err, apperr.ErrAlreadyPending)

	_, err = ana.Respond(ctx, req.ID, models.StateAccepted)
	assert.Error(t, err)

	incoming, err := ben.ListConnections(ctx, models.StatePending)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.False(t, incoming[0].IsRequester)

	cancelled, err := ana.Cancel(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.Status)

	left, err := ben.ListConnections(ctx, models.StatePending)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRejectsMissingToken(t *testing.T) {
	h := newHarness(t)

	_, err := client.New(h.srv.URL, "").ListRooms(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = client.New(h.srv.URL, "not-a-token").ListRooms(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestSessionReceivesLiveMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ana, ben := h.client(t, 1), h.client(t, 2)
	connect(t, ctx, ana, ben, 2, 1)
	room, err := ana.OpenDirect(ctx, 2)
	require.NoError(t, err)

	mux := realtime.NewMultiplexer(realtime.NewWebSocketTransport(h.srv.URL, h.token(t, 2)), ben, 2)
	s := session.New(ben, mux, 2, session.Options{TypingIdle: 50 * time.Millisecond})
	defer s.Close(ctx)

	require.NoError(t, s.SetCurrentRoom(ctx, room.ID))
	require.Eventually(t, func() bool { return s.Snapshot().Connected }, 3*time.Second, 10*time.Millisecond)

	_, err = ana.Append(ctx, models.AppendInput{RoomID: room.ID, Content: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, m := range s.Snapshot().Messages {
			if m.Content == "ping" && m.SenderID == 1 {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	s.SetInput("pong")
	require.NoError(t, s.Send(ctx))
	require.Eventually(t, func() bool { return len(s.Snapshot().Messages) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "pong", s.Snapshot().Messages[1].Content)

	presence, err := ana.Presence(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, presence.Status)
	require.NotNil(t, presence.CurrentRoomID)
	assert.Equal(t, room.ID, *presence.CurrentRoomID)
}
