// Package presence tracks online, away and busy signals and fans changes out to rooms.
package presence

import (
	"context"
	"fmt"
	"log"
	"time"

	"collab-service/internal/apperr"
	"collab-service/internal/models"
)

// DefaultStaleAfter is how long a row stays live without a heartbeat.
const DefaultStaleAfter = 90 * time.Second

// RoomLister lists the rooms a user belongs to.
type RoomLister interface {
	RoomIDsForUser(ctx context.Context, userID int) ([]int, error)
}

// Notifier fans realtime events out to room subscribers.
type Notifier interface {
	Broadcast(ctx context.Context, ev models.Event) error
}

// Tracker applies last-write-wins presence updates and read-time staleness.
type Tracker struct {
	store      Store
	rooms      RoomLister
	notifier   Notifier
	staleAfter time.Duration
	now        func() time.Time
}

// NewTracker builds a Tracker. rooms and notifier may be nil to disable fan-out.
func NewTracker(store Store, rooms RoomLister, notifier Notifier, staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		store:      store,
		rooms:      rooms,
		notifier:   notifier,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StaleAfter reports the liveness window.
func (t *Tracker) StaleAfter() time.Duration { return t.staleAfter }

// SetStatus records the user's status and current room.
func (t *Tracker) SetStatus(ctx context.Context, userID int, status models.PresenceStatus, roomID *int) (models.UserPresence, error) {
	if !status.Valid() {
		return models.UserPresence{}, apperr.New(apperr.KindInvalidArgument, "invalid presence status %q", status)
	}
	p := models.UserPresence{UserID: userID, Status: status, LastSeen: t.now(), CurrentRoomID: roomID}
	if err := t.store.Put(ctx, p); err != nil {
		return models.UserPresence{}, fmt.Errorf("set presence: %w", err)
	}
	t.fanOut(ctx, p)
	return p, nil
}

// Touch refreshes LastSeen keeping status and room. A user with no live row comes back online.
func (t *Tracker) Touch(ctx context.Context, userID int) (models.UserPresence, error) {
	stored, ok, err := t.store.Get(ctx, userID)
	if err != nil {
		return models.UserPresence{}, fmt.Errorf("touch presence: %w", err)
	}
	previous := t.effective(userID, stored, ok)

	next := stored
	if !ok || previous.Status == models.PresenceOffline {
		next = models.UserPresence{UserID: userID, Status: models.PresenceOnline}
		if ok {
			next.CurrentRoomID = stored.CurrentRoomID
		}
	}
	next.UserID = userID
	next.LastSeen = t.now()
	if err := t.store.Put(ctx, next); err != nil {
		return models.UserPresence{}, fmt.Errorf("touch presence: %w", err)
	}
	if previous.Status != next.Status {
		t.fanOut(ctx, next)
	}
	return next, nil
}

// Get returns the user's presence; no row or a stale row reads as offline.
func (t *Tracker) Get(ctx context.Context, userID int) (models.UserPresence, error) {
	p, ok, err := t.store.Get(ctx, userID)
	if err != nil {
		return models.UserPresence{}, fmt.Errorf("get presence: %w", err)
	}
	return t.effective(userID, p, ok), nil
}

// BulkGet returns presence for every requested id.
func (t *Tracker) BulkGet(ctx context.Context, userIDs []int) (map[int]models.UserPresence, error) {
	rows, err := t.store.BulkGet(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("bulk presence: %w", err)
	}
	out := make(map[int]models.UserPresence, len(userIDs))
	for _, id := range userIDs {
		p, ok := rows[id]
		out[id] = t.effective(id, p, ok)
	}
	return out, nil
}

func (t *Tracker) effective(userID int, p models.UserPresence, ok bool) models.UserPresence {
	if !ok {
		return models.Offline(userID)
	}
	if p.Status != models.PresenceOffline && t.now().Sub(p.LastSeen) > t.staleAfter {
		return models.UserPresence{UserID: userID, Status: models.PresenceOffline, LastSeen: p.LastSeen}
	}
	return p
}

func (t *Tracker) fanOut(ctx context.Context, p models.UserPresence) {
	if t.rooms == nil || t.notifier == nil {
		return
	}
	ids, err := t.rooms.RoomIDsForUser(ctx, p.UserID)
	if err != nil {
		log.Printf("presence fan-out failed user_id=%d: %v", p.UserID, err)
		return
	}
	for _, roomID := range ids {
		if err := t.notifier.Broadcast(ctx, models.PresenceEvent(roomID, p)); err != nil {
			log.Printf("presence broadcast failed user_id=%d room_id=%d: %v", p.UserID, roomID, err)
		}
	}
}
