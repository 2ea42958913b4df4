// Package session is the state a chat UI renders for one signed-in user: the open room, its
// ordered messages, who is typing, counterpart presence and the composer input.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
	"collab-service/internal/realtime"
)

const (
	DefaultTypingIdle = time.Second
	DefaultPageSize   = 50
	DefaultHeartbeat  = 30 * time.Second
)

// Store is the remote API the session calls. *client.Client satisfies it.
type Store interface {
	Page(ctx context.Context, roomID, limit, offset int) ([]models.ChatMessage, error)
	Append(ctx context.Context, in models.AppendInput) (models.ChatMessage, error)
	MarkRead(ctx context.Context, roomID int) error
	SetPresence(ctx context.Context, status models.PresenceStatus, roomID *int) (models.UserPresence, error)
	Heartbeat(ctx context.Context) (models.UserPresence, error)
}

// Channel is the realtime side. *realtime.Multiplexer satisfies it.
type Channel interface {
	Subscribe(ctx context.Context, roomID int, handler realtime.Handler) (*realtime.Subscription, error)
	Unsubscribe(roomID int)
	SendTyping(roomID int, isTyping bool) error
	Close()
}

type Options struct {
	TypingIdle time.Duration
	PageSize   int
	// Heartbeat is the RunHeartbeat period, usually a third of the server's stale-after window.
	Heartbeat time.Duration
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	RoomID    int
	Messages  []models.ChatMessage
	Typing    []int
	Presence  map[int]models.UserPresence
	Connected bool
	HasMore   bool
	Input     string
	Status    models.PresenceStatus
	LastError error
}

type typingSignal struct {
	roomID   int
	isTyping bool
}

type Session struct {
	store   Store
	channel Channel
	selfID  int
	opts    Options

	base       context.Context
	cancelBase context.CancelFunc
	changes    chan struct{}
	typingOut  chan typingSignal
	emitterWG  sync.WaitGroup

	mu           sync.Mutex
	room         *roomActor
	input        string
	status       models.PresenceStatus
	lastErr      error
	typingActive bool
	typingRoom   int
	typingGen    uint64
	typingTimer  *time.Timer
	closed       bool
}

func New(store Store, channel Channel, selfID int, opts Options) *Session {
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = DefaultTypingIdle
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:      store,
		channel:    channel,
		selfID:     selfID,
		opts:       opts,
		base:       base,
		cancelBase: cancel,
		changes:    make(chan struct{}, 1),
		typingOut:  make(chan typingSignal, 64),
		status:     models.PresenceOnline,
	}
	s.emitterWG.Add(1)
	go s.emitTyping()
	return s
}

// Changes receives a value after state changes. Bursts coalesce into one value.
func (s *Session) Changes() <-chan struct{} { return s.changes }

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) recordErr(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

// ClearError forgets the last surfaced error.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Session) current() *roomActor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// scoped returns a context cancelled by either ctx or the room actor.
func scoped(ctx context.Context, a *roomActor) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

// SetCurrentRoom switches the session to roomID. The previous room is torn down first, which
// cancels its in-flight page fetch.
func (s *Session) SetCurrentRoom(ctx context.Context, roomID int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.New(apperr.KindInvalidState, "session closed")
	}
	prev := s.room
	s.room = nil
	s.stopTypingLocked()
	s.mu.Unlock()

	if prev != nil {
		s.channel.Unsubscribe(prev.roomID())
		prev.stop()
	}

	a := newRoomActor(s, roomID)
	s.mu.Lock()
	s.room = a
	status := s.status
	s.mu.Unlock()
	s.notify()

	if _, err := s.channel.Subscribe(a.ctx, roomID, a); err != nil {
		s.recordErr(err)
		return err
	}
	s.mu.Lock()
	a.subscribed = true
	s.mu.Unlock()

	if err := s.loadLatest(ctx, a); err != nil {
		return err
	}
	if a.ctx.Err() != nil {
		return nil
	}
	if err := s.store.MarkRead(ctx, roomID); err != nil {
		s.recordErr(err)
		return err
	}
	if _, err := s.store.SetPresence(ctx, status, &roomID); err != nil {
		s.recordErr(err)
		return err
	}
	return nil
}

func (s *Session) loadLatest(ctx context.Context, a *roomActor) error {
	pctx, cancel := scoped(ctx, a)
	defer cancel()

	page, err := s.store.Page(pctx, a.roomID(), s.opts.PageSize, 0)
	if err != nil {
		if a.ctx.Err() != nil {
			return nil
		}
		s.recordErr(err)
		return err
	}
	a.post(func(st *roomState) { st.replaceLatest(page, s.opts.PageSize) })
	return nil
}

// refreshLatest re-fetches the newest page after a reconnect, since events may have been
// missed while the transport was down.
func (s *Session) refreshLatest(a *roomActor) {
	_ = s.loadLatest(a.ctx, a)
}

// LoadOlder fetches the page preceding the oldest cached message.
func (s *Session) LoadOlder(ctx context.Context) error {
	a := s.current()
	if a == nil {
		return apperr.New(apperr.KindInvalidState, "no room open")
	}
	var offset int
	if !a.query(func(st *roomState) { offset = len(st.messages) }) {
		return nil
	}

	pctx, cancel := scoped(ctx, a)
	defer cancel()
	page, err := s.store.Page(pctx, a.roomID(), s.opts.PageSize, offset)
	if err != nil {
		if a.ctx.Err() != nil {
			return nil
		}
		s.recordErr(err)
		return err
	}
	a.post(func(st *roomState) { st.prependOlder(page, s.opts.PageSize) })
	return nil
}

// SetInput replaces the composer text. Non-empty input counts as a keystroke.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	if text == "" {
		s.stopTypingLocked()
	} else {
		s.keystrokeLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// Send appends the composer text to the open room. The input is cleared immediately and
// restored when the append fails. Nothing is inserted locally; the message arrives over the
// realtime channel.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	a := s.room
	content := s.input
	if a == nil {
		s.mu.Unlock()
		err := apperr.New(apperr.KindInvalidState, "no room open")
		s.recordErr(err)
		return err
	}
	s.input = ""
	s.stopTypingLocked()
	s.mu.Unlock()
	s.notify()

	if _, err := s.store.Append(ctx, models.AppendInput{RoomID: a.roomID(), Content: content, Type: models.MessageText}); err != nil {
		s.mu.Lock()
		s.input = content + s.input
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}

// SetStatus records the user's own presence, keeping the open room.
func (s *Session) SetStatus(ctx context.Context, status models.PresenceStatus) error {
	s.mu.Lock()
	s.status = status
	var roomID *int
	if s.room != nil {
		id := s.room.roomID()
		roomID = &id
	}
	s.mu.Unlock()

	if _, err := s.store.SetPresence(ctx, status, roomID); err != nil {
		s.recordErr(err)
		return err
	}
	s.notify()
	return nil
}

// RunHeartbeat keeps the user's presence live until ctx ends.
func (s *Session) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.base.Done():
			return
		case <-ticker.C:
			if _, err := s.store.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				s.recordErr(err)
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Input: s.input, Status: s.status, LastError: s.lastErr}
	a := s.room
	s.mu.Unlock()

	snap.Presence = map[int]models.UserPresence{}
	if a == nil {
		return snap
	}
	snap.RoomID = a.roomID()
	a.query(func(st *roomState) {
		snap.Messages = append([]models.ChatMessage(nil), st.messages...)
		for id := range st.typing {
			snap.Typing = append(snap.Typing, id)
		}
		for id, p := range st.presence {
			snap.Presence[id] = p
		}
		snap.Connected = st.connected
		snap.HasMore = st.hasMore
	})
	sort.Ints(snap.Typing)
	return snap
}

// Close stops typing, leaves the open room and marks the user offline.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	a := s.room
	s.room = nil
	s.stopTypingLocked()
	s.mu.Unlock()

	close(s.typingOut)
	s.emitterWG.Wait()

	if a != nil {
		s.channel.Unsubscribe(a.roomID())
		a.stop()
	}
	s.channel.Close()
	s.cancelBase()

	_, err := s.store.SetPresence(ctx, models.PresenceOffline, nil)
	return err
}

func (s *Session) keystrokeLocked() {
	if s.room == nil || s.closed {
		return
	}
	if !s.typingActive {
		s.typingActive = true
		s.typingRoom = s.room.roomID()
		s.typingOut <- typingSignal{roomID: s.typingRoom, isTyping: true}
	}
	s.typingGen++
	gen := s.typingGen
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.opts.TypingIdle, func() { s.typingIdle(gen) })
}

func (s *Session) typingIdle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.typingGen {
		return
	}
	s.stopTypingLocked()
}

func (s *Session) stopTypingLocked() {
	s.typingGen++
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if !s.typingActive {
		return
	}
	s.typingActive = false
	s.typingOut <- typingSignal{roomID: s.typingRoom, isTyping: false}
}

// emitTyping sends typing signals in order. TransportUnavailable is recovered by
// resubscribing when the open room lost its subscription; other failures are surfaced.
func (s *Session) emitTyping() {
	defer s.emitterWG.Done()
	for sig := range s.typingOut {
		err := s.channel.SendTyping(sig.roomID, sig.isTyping)
		if err == nil {
			continue
		}
		if errors.Is(err, apperr.ErrTransportUnavailable) {
			s.resubscribe(sig.roomID)
			continue
		}
		s.recordErr(err)
	}
}

func (s *Session) resubscribe(roomID int) {
	s.mu.Lock()
	a := s.room
	if a == nil || a.roomID() != roomID || a.subscribed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if _, err := s.channel.Subscribe(a.ctx, roomID, a); err != nil {
		log.Printf("session resubscribe failed room_id=%d: %v", roomID, err)
		return
	}
	s.mu.Lock()
	a.subscribed = true
	s.mu.Unlock()
}
