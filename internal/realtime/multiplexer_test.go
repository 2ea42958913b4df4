package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
)

const waitFor = 2 * time.Second

var errDropped = errors.New("dropped")

type fakeConn struct {
	events chan models.Event
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	typing   []bool
	failSend bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan models.Event, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadEvent() (models.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return models.Event{}, errDropped
	}
}

func (c *fakeConn) SendTyping(isTyping bool) error {
	select {
	case <-c.closed:
		return errDropped
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errDropped
	}
	c.typing = append(c.typing, isTyping)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sent() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.typing...)
}

type fakeTransport struct {
	dials chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dials: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Dial(ctx context.Context, roomID int) (Conn, error) {
	c := newFakeConn()
	t.dials <- c
	return c, nil
}

func (t *fakeTransport) next(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case c := <-t.dials:
		return c
	case <-time.After(waitFor):
		tb.Fatal("no dial")
		return nil
	}
}

type fetcherFunc func(ctx context.Context, roomID, messageID int) (models.ChatMessage, error)

func (f fetcherFunc) Message(ctx context.Context, roomID, messageID int) (models.ChatMessage, error) {
	return f(ctx, roomID, messageID)
}

type subscribedCall struct {
	roomID  int
	resumed bool
}

type typingCall struct {
	userID   int
	isTyping bool
}

type recorder struct {
	subscribed   chan subscribedCall
	messages     chan models.ChatMessage
	updated      chan models.ChatMessage
	presence     chan models.UserPresence
	typing       chan typingCall
	disconnected chan error
	errs         chan error
}

func newRecorder() *recorder {
	return &recorder{
		subscribed:   make(chan subscribedCall, 8),
		messages:     make(chan models.ChatMessage, 8),
		updated:      make(chan models.ChatMessage, 8),
		presence:     make(chan models.UserPresence, 8),
		typing:       make(chan typingCall, 8),
		disconnected: make(chan error, 8),
		errs:         make(chan error, 8),
	}
}

func (r *recorder) OnSubscribed(roomID int, resumed bool) {
	r.subscribed <- subscribedCall{roomID, resumed}
}
func (r *recorder) OnMessage(msg models.ChatMessage)        { r.messages <- msg }
func (r *recorder) OnMessageUpdated(msg models.ChatMessage) { r.updated <- msg }
func (r *recorder) OnPresence(p models.UserPresence)        { r.presence <- p }
func (r *recorder) OnTyping(userID int, isTyping bool)      { r.typing <- typingCall{userID, isTyping} }
func (r *recorder) OnDisconnected(roomID int, err error)    { r.disconnected <- err }
func (r *recorder) OnError(err error)                       { r.errs <- err }

func receive[T any](tb testing.TB, ch <-chan T) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		tb.Fatal("timed out waiting for callback")
		var zero T
		return zero
	}
}

func newTestMux(transport Transport, fetcher MessageFetcher) *Multiplexer {
	m := NewMultiplexer(transport, fetcher, 1)
	m.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return m
}

func noFetch(ctx context.Context, roomID, messageID int) (models.ChatMessage, error) {
	return models.ChatMessage{}, errors.New("unexpected fetch")
}

func TestInsertedEventIsHydrated(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(func(ctx context.Context, roomID, messageID int) (models.ChatMessage, error) {
		return models.ChatMessage{ID: messageID, RoomID: roomID, SenderName: "Ann", Content: "hi"}, nil
	}))
	defer mux.Close()
	rec := newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	conn := transport.next(t)
	conn.events <- models.Event{Kind: models.EventSubscribed, RoomID: 7}
	assert.Equal(t, subscribedCall{7, false}, receive(t, rec.subscribed))

	conn.events <- models.MessageEvent(models.EventMessageInserted, 7, 5)
	msg := receive(t, rec.messages)
	assert.Equal(t, 5, msg.ID)
	assert.Equal(t, "Ann", msg.SenderName)

	conn.events <- models.MessageEvent(models.EventMessageUpdated, 7, 5)
	assert.Equal(t, 5, receive(t, rec.updated).ID)
}

func TestHydrationFailureIsReported(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	rec := newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	conn := transport.next(t)
	conn.events <- models.MessageEvent(models.EventMessageInserted, 7, 5)

	assert.ErrorContains(t, receive(t, rec.errs), "hydrate message 5")
}

func TestOwnTypingIsDropped(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	rec := newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	conn := transport.next(t)
	conn.events <- models.TypingEvent(7, 1, true)
	conn.events <- models.TypingEvent(7, 2, true)
	conn.events <- models.PresenceEvent(7, models.UserPresence{UserID: 2, Status: models.PresenceAway})

	assert.Equal(t, typingCall{2, true}, receive(t, rec.typing))
	assert.Equal(t, models.PresenceAway, receive(t, rec.presence).Status)
	assert.Empty(t, rec.typing)
}

func TestEventsForOtherRoomsAreIgnored(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	rec := newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	conn := transport.next(t)
	conn.events <- models.TypingEvent(8, 2, true)
	conn.events <- models.TypingEvent(7, 3, true)

	assert.Equal(t, typingCall{3, true}, receive(t, rec.typing))
}

func TestReconnectResubscribesAndReportsResumed(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	rec := newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	first := transport.next(t)
	first.events <- models.Event{Kind: models.EventSubscribed, RoomID: 7}
	assert.False(t, receive(t, rec.subscribed).resumed)

	require.NoError(t, first.Close())
	assert.ErrorIs(t, receive(t, rec.disconnected), errDropped)

	second := transport.next(t)
	second.events <- models.Event{Kind: models.EventSubscribed, RoomID: 7}
	assert.Equal(t, subscribedCall{7, true}, receive(t, rec.subscribed))
}

func TestSendTyping(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()

	assert.ErrorIs(t, mux.SendTyping(7, true), apperr.ErrTransportUnavailable)

	sub, err := mux.Subscribe(context.Background(), 7, newRecorder())
	require.NoError(t, err)
	conn := transport.next(t)
	require.Eventually(t, sub.Connected, waitFor, 5*time.Millisecond)

	require.NoError(t, mux.SendTyping(7, true))
	require.NoError(t, mux.SendTyping(7, false))
	assert.Equal(t, []bool{true, false}, conn.sent())
}

func TestSendTypingOnDeadConnForcesReconnect(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	rec := newRecorder()

	sub, err := mux.Subscribe(context.Background(), 7, rec)
	require.NoError(t, err)
	conn := transport.next(t)
	require.Eventually(t, sub.Connected, waitFor, 5*time.Millisecond)

	conn.mu.Lock()
	conn.failSend = true
	conn.mu.Unlock()

	assert.ErrorIs(t, mux.SendTyping(7, true), apperr.ErrTransportUnavailable)
	assert.ErrorIs(t, receive(t, rec.disconnected), errDropped)
	transport.next(t)
}

func TestSubscribeReplacesExisting(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))
	defer mux.Close()
	oldRec, newRec := newRecorder(), newRecorder()

	_, err := mux.Subscribe(context.Background(), 7, oldRec)
	require.NoError(t, err)
	first := transport.next(t)

	_, err = mux.Subscribe(context.Background(), 7, newRec)
	require.NoError(t, err)
	select {
	case <-first.closed:
	default:
		t.Fatal("previous connection left open")
	}
	second := transport.next(t)
	second.events <- models.TypingEvent(7, 2, true)

	assert.Equal(t, typingCall{2, true}, receive(t, newRec.typing))
	assert.Empty(t, oldRec.typing)
	assert.Empty(t, oldRec.disconnected)
}

func TestCloseTearsDownEverything(t *testing.T) {
	transport := newFakeTransport()
	mux := newTestMux(transport, fetcherFunc(noFetch))

	_, err := mux.Subscribe(context.Background(), 7, newRecorder())
	require.NoError(t, err)
	_, err = mux.Subscribe(context.Background(), 8, newRecorder())
	require.NoError(t, err)
	a, b := transport.next(t), transport.next(t)

	mux.Close()

	for _, c := range []*fakeConn{a, b} {
		select {
		case <-c.closed:
		default:
			t.Fatal("connection left open after Close")
		}
	}
	_, err = mux.Subscribe(context.Background(), 9, newRecorder())
	assert.Error(t, err)
	assert.ErrorIs(t, mux.SendTyping(7, true), apperr.ErrTransportUnavailable)
}
