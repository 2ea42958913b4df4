// Package realtime keeps one subscription per open room on top of a Transport, hydrating
// message notifications and reconnecting with exponential backoff.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
)

// MessageFetcher loads a hydrated message by id.
type MessageFetcher interface {
	Message(ctx context.Context, roomID, messageID int) (models.ChatMessage, error)
}

// Handler receives the events of one room. Calls for a room are made from a single goroutine.
type Handler interface {
	// OnSubscribed fires on every server acknowledgement; resumed is true after a reconnect.
	OnSubscribed(roomID int, resumed bool)
	OnMessage(msg models.ChatMessage)
	OnMessageUpdated(msg models.ChatMessage)
	OnPresence(p models.UserPresence)
	OnTyping(userID int, isTyping bool)
	OnDisconnected(roomID int, err error)
	OnError(err error)
}

// Multiplexer owns the subscriptions of one session.
type Multiplexer struct {
	transport  Transport
	fetcher    MessageFetcher
	selfID     int
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	subs   map[int]*Subscription
	closed bool
}

func NewMultiplexer(transport Transport, fetcher MessageFetcher, selfID int) *Multiplexer {
	return &Multiplexer{
		transport:  transport,
		fetcher:    fetcher,
		selfID:     selfID,
		newBackOff: defaultBackOff,
		subs:       make(map[int]*Subscription),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Subscribe opens roomID for handler, replacing any subscription the room already has.
// Dialing happens in the background.
func (m *Multiplexer) Subscribe(ctx context.Context, roomID int, handler Handler) (*Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("multiplexer closed")
	}
	prev := m.subs[roomID]
	sub := newSubscription(ctx, m, roomID, handler)
	m.subs[roomID] = sub
	m.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	go sub.run()
	return sub, nil
}

// Unsubscribe tears down roomID and waits for its handler calls to finish.
func (m *Multiplexer) Unsubscribe(roomID int) {
	m.mu.Lock()
	sub := m.subs[roomID]
	delete(m.subs, roomID)
	m.mu.Unlock()
	if sub != nil {
		sub.stop()
	}
}

// SendTyping signals typing on roomID. It fails with apperr.ErrTransportUnavailable when the
// room has no live connection.
func (m *Multiplexer) SendTyping(roomID int, isTyping bool) error {
	m.mu.Lock()
	sub := m.subs[roomID]
	m.mu.Unlock()
	if sub == nil {
		return apperr.ErrTransportUnavailable
	}
	return sub.sendTyping(isTyping)
}

// Close stops every subscription. The multiplexer cannot be reused.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = make(map[int]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Subscription is the live channel of one room.
type Subscription struct {
	m       *Multiplexer
	roomID  int
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	conn Conn
}

func newSubscription(parent context.Context, m *Multiplexer, roomID int, handler Handler) *Subscription {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Subscription{
		m:       m,
		roomID:  roomID,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (s *Subscription) RoomID() int { return s.roomID }

// Connected reports whether the subscription holds a live connection.
func (s *Subscription) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Subscription) stop() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Subscription) sendTyping(isTyping bool) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return apperr.ErrTransportUnavailable
	}
	if err := conn.SendTyping(isTyping); err != nil {
		// the read loop observes the closed conn and reconnects
		_ = conn.Close()
		return apperr.New(apperr.KindTransportUnavailable, "send typing: %v", err)
	}
	return nil
}

func (s *Subscription) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Subscription) run() {
	defer close(s.done)

	policy := s.m.newBackOff()
	acked := false
	for {
		conn, err := s.m.transport.Dial(s.ctx, s.roomID)
		if err == nil {
			s.setConn(conn)
			if s.ctx.Err() != nil {
				_ = conn.Close()
				s.setConn(nil)
				return
			}
			err = s.read(conn, &acked, policy)
			_ = conn.Close()
			s.setConn(nil)
		}
		if s.ctx.Err() != nil {
			return
		}
		s.handler.OnDisconnected(s.roomID, err)

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			log.Printf("realtime giving up room_id=%d: %v", s.roomID, err)
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Subscription) read(conn Conn, acked *bool, policy backoff.BackOff) error {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			return err
		}
		if ev.RoomID != s.roomID || s.ctx.Err() != nil {
			continue
		}
		if ev.Kind == models.EventSubscribed {
			policy.Reset()
			resumed := *acked
			*acked = true
			s.handler.OnSubscribed(s.roomID, resumed)
			continue
		}
		s.dispatch(ev)
	}
}

func (s *Subscription) dispatch(ev models.Event) {
	switch ev.Kind {
	case models.EventMessageInserted, models.EventMessageUpdated:
		msg, err := s.m.fetcher.Message(s.ctx, s.roomID, ev.MessageID)
		if err != nil {
			if s.ctx.Err() == nil {
				s.handler.OnError(fmt.Errorf("hydrate message %d: %w", ev.MessageID, err))
			}
			return
		}
		if ev.Kind == models.EventMessageInserted {
			s.handler.OnMessage(msg)
		} else {
			s.handler.OnMessageUpdated(msg)
		}
	case models.EventPresenceChanged:
		if ev.Presence != nil {
			s.handler.OnPresence(*ev.Presence)
		}
	case models.EventTyping:
		if ev.Typing != nil && ev.Typing.UserID != s.m.selfID {
			s.handler.OnTyping(ev.Typing.UserID, ev.Typing.IsTyping)
		}
	}
}
