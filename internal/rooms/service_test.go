package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/apperr"
	"collab-service/internal/connections"
	"collab-service/internal/messages"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type fixture struct {
	store *repositories.MemoryStore
	conns *connections.Service
	msgs  *messages.Service
	rooms *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	store := repositories.NewMemoryStoreWithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	for id, name := range map[int]string{1: "Ana", 2: "Ben", 3: "Cy", 4: "Dee"} {
		store.PutProfile(models.Profile{UserID: id, Username: name, DisplayName: name})
	}
	conns := connections.NewService(store, nil)
	msgs := messages.NewService(store, store, store, nil, nil)
	return fixture{
		store: store,
		conns: conns,
		msgs:  msgs,
		rooms: NewService(store, store, conns, msgs, nil),
	}
}

func (f fixture) connect(t *testing.T, a, b int) {
	t.Helper()
	ctx := context.Background()
	conn, err := f.conns.SendRequest(ctx, a, b, models.ConnectionFriend)
	require.NoError(t, err)
	_, err = f.conns.Respond(ctx, b, conn.ID, models.StateAccepted)
	require.NoError(t, err)
}

func TestDirectRoomRequiresAcceptedConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rooms.GetOrCreateDirect(ctx, 1, 3)
	assert.ErrorIs(t, err, apperr.ErrNotConnected)

	rooms, err := f.rooms.ListRooms(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = f.conns.SendRequest(ctx, 1, 3, models.ConnectionFriend)
	require.NoError(t, err)
	_, err = f.rooms.GetOrCreateDirect(ctx, 1, 3)
	assert.ErrorIs(t, err, apperr.ErrNotConnected)
}

func TestDirectRoomIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, 1, 2)

	first, err := f.rooms.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RoomDirect, first.Type)
	assert.Equal(t, 2, first.ParticipantCount)

	second, err := f.rooms.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	fromOther, err := f.rooms.GetOrCreateDirect(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fromOther.ID)
}

func TestUnreadCountTracksInboundMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, 1, 2)
	room, err := f.rooms.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	unread := func(user int) int {
		got, err := f.rooms.Get(ctx, user, room.ID)
		require.NoError(t, err)
		return got.UnreadCount
	}

	_, err = f.msgs.Append(ctx, 2, models.AppendInput{RoomID: room.ID, Content: "one"})
	require.NoError(t, err)
	assert.Equal(t, 1, unread(1))
	assert.Equal(t, 0, unread(2))

	require.NoError(t, f.rooms.MarkRead(ctx, 1, room.ID))
	assert.Equal(t, 0, unread(1))
	require.NoError(t, f.rooms.MarkRead(ctx, 1, room.ID))
	assert.Equal(t, 0, unread(1))

	for i := 1; i <= 3; i++ {
		_, err = f.msgs.Append(ctx, 2, models.AppendInput{RoomID: room.ID, Content: "more"})
		require.NoError(t, err)
		assert.Equal(t, i, unread(1))
	}

	_, err = f.msgs.Append(ctx, 1, models.AppendInput{RoomID: room.ID, Content: "mine"})
	require.NoError(t, err)
	_, err = f.msgs.AppendSystem(ctx, room.ID, 2, "notice")
	require.NoError(t, err)
	assert.Equal(t, 3, unread(1))

	assert.ErrorIs(t, f.rooms.MarkRead(ctx, 4, room.ID), apperr.ErrNotAMember)
}

func TestListRoomsOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, 1, 2)
	f.connect(t, 1, 3)

	r12, err := f.rooms.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	r13, err := f.rooms.GetOrCreateDirect(ctx, 1, 3)
	require.NoError(t, err)

	_, err = f.msgs.Append(ctx, 2, models.AppendInput{RoomID: r12.ID, Content: "latest"})
	require.NoError(t, err)

	rooms, err := f.rooms.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, r12.ID, rooms[0].ID)
	assert.Equal(t, r13.ID, rooms[1].ID)
	require.NotNil(t, rooms[0].LatestMessage)
	assert.Equal(t, "latest", rooms[0].LatestMessage.Content)
	assert.Equal(t, "Ben", rooms[0].LatestMessage.SenderName)
}

func TestCreateGroupAndAddMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, 1, 2)

	_, err := f.rooms.CreateGroup(ctx, 1, CreateGroupInput{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = f.rooms.CreateGroup(ctx, 1, CreateGroupInput{Name: "x", Type: models.RoomDirect})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	room, err := f.rooms.CreateGroup(ctx, 1, CreateGroupInput{Name: "Design", Type: models.RoomCollaboration})
	require.NoError(t, err)
	assert.Equal(t, 1, room.ParticipantCount)
	member, err := f.store.GetMember(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, member.Role)

	_, err = f.rooms.AddMembers(ctx, 1, room.ID, []int{3})
	assert.ErrorIs(t, err, apperr.ErrNotConnected)

	added, err := f.rooms.AddMembers(ctx, 1, room.ID, []int{2, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, added)

	again, err := f.rooms.AddMembers(ctx, 1, room.ID, []int{2})
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = f.rooms.AddMembers(ctx, 2, room.ID, []int{1})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.rooms.AddMembers(ctx, 4, room.ID, []int{1})
	assert.ErrorIs(t, err, apperr.ErrNotAMember)

	page, err := f.msgs.Page(ctx, 2, room.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, models.MessageSystem, page[0].Type)
	assert.Equal(t, "Ben joined", page[0].Content)

	ids, err := f.rooms.RoomIDsForUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{room.ID}, ids)
}

func TestDirectRoomRejectsNewMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, 1, 2)
	f.connect(t, 1, 3)
	room, err := f.rooms.GetOrCreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	_, err = f.rooms.AddMembers(ctx, 1, room.ID, []int{3})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.rooms.Get(ctx, 3, room.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
