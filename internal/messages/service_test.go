package messages

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/repositories"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Broadcast(ctx context.Context, ev models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type recordingStream struct {
	created []int
}

func (s *recordingStream) MessageCreated(ctx context.Context, msg models.ChatMessage) error {
	s.created = append(s.created, msg.ID)
	return nil
}

type fixture struct {
	svc      *Service
	store    *repositories.MemoryStore
	notifier *recordingNotifier
	stream   *recordingStream
	roomID   int
}

// newFixture builds a direct room between users 1 and 2 on a frozen clock.
func newFixture(t *testing.T) fixture {
	t.Helper()
	frozen := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store := repositories.NewMemoryStoreWithClock(func() time.Time { return frozen })
	store.PutProfile(models.Profile{UserID: 1, Username: "ana", DisplayName: "Ana"})
	store.PutProfile(models.Profile{UserID: 2, Username: "ben"})

	room, _, err := store.CreateOrGetDirectRoom(context.Background(), 1, 2)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	stream := &recordingStream{}
	return fixture{
		svc:      NewService(store, store, store, notifier, stream),
		store:    store,
		notifier: notifier,
		stream:   stream,
		roomID:   room.ID,
	}
}

func TestAppendThenReplyPagesInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hello, err := f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageText, hello.Type)
	assert.Equal(t, "Ana", hello.SenderName)

	world, err := f.svc.Append(ctx, 2, models.AppendInput{RoomID: f.roomID, Content: "world", ReplyTo: &hello.ID})
	require.NoError(t, err)

	page, err := f.svc.Page(ctx, 1, f.roomID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "hello", page[0].Content)
	assert.Equal(t, "world", page[1].Content)
	require.NotNil(t, page[1].ReplyTo)
	assert.Equal(t, hello.ID, *page[1].ReplyTo)
	require.NotNil(t, page[1].ReplyContent)
	assert.Equal(t, "hello", *page[1].ReplyContent)
	assert.Equal(t, "ben", page[1].SenderName)

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, models.EventMessageInserted, f.notifier.events[1].Kind)
	assert.Equal(t, world.ID, f.notifier.events[1].MessageID)
	assert.Equal(t, []int{hello.ID, world.ID}, f.stream.created)
}

func TestPageIsStableOnTimestampTies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: text})
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		page, err := f.svc.Page(ctx, 2, f.roomID, 10, 0)
		require.NoError(t, err)
		got := make([]string, 0, len(page))
		for _, m := range page {
			got = append(got, m.Content)
		}
		assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	}

	older, err := f.svc.Page(ctx, 2, f.roomID, 2, 2)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "a", older[0].Content)
	assert.Equal(t, "b", older[1].Content)

	empty, err := f.svc.Page(ctx, 2, f.roomID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "   \n"})
	assert.ErrorIs(t, err, apperr.ErrEmptyContent)

	_, err = f.svc.Append(ctx, 3, models.AppendInput{RoomID: f.roomID, Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrNotAMember)

	_, err = f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "hi", Type: models.MessageSystem})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	missing := 404
	_, err = f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "hi", ReplyTo: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Page(ctx, 3, f.roomID, 10, 0)
	assert.ErrorIs(t, err, apperr.ErrNotAMember)

	assert.Empty(t, f.notifier.events)
}

func TestReplyMustBeInSameRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other, _, err := f.store.CreateOrGetDirectRoom(ctx, 1, 3)
	require.NoError(t, err)
	elsewhere, err := f.svc.Append(ctx, 1, models.AppendInput{RoomID: other.ID, Content: "elsewhere"})
	require.NoError(t, err)

	_, err = f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "reply", ReplyTo: &elsewhere.ID})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Append(ctx, 1, models.AppendInput{RoomID: f.roomID, Content: "draft"})
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, 2, f.roomID, msg.ID, "hijack")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Edit(ctx, 1, f.roomID, msg.ID, " ")
	assert.ErrorIs(t, err, apperr.ErrEmptyContent)

	edited, err := f.svc.Edit(ctx, 1, f.roomID, msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, msg.CreatedAt, edited.CreatedAt)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, models.EventMessageUpdated, last.Kind)
	assert.Equal(t, msg.ID, last.MessageID)

	sys, err := f.svc.AppendSystem(ctx, f.roomID, 1, "Ana joined")
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, 1, f.roomID, sys.ID, "nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.Get(ctx, 1, f.roomID, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPageLimitIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < MaxPageSize+5; i++ {
		_, err := f.store.CreateMessage(ctx, models.NewMessage{RoomID: f.roomID, SenderID: 1, Content: "x", Type: models.MessageText})
		require.NoError(t, err)
	}

	page, err := f.svc.Page(ctx, 1, f.roomID, 1000, -3)
	require.NoError(t, err)
	assert.Len(t, page, MaxPageSize)

	page, err = f.svc.Page(ctx, 1, f.roomID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, DefaultPageSize)
}
