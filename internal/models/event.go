package models

import "time"

// EventKind names a realtime event carried on a room channel.
type EventKind string

const (
	EventSubscribed      EventKind = "subscribed"
	EventMessageInserted EventKind = "message_inserted"
	EventMessageUpdated  EventKind = "message_updated"
	EventPresenceChanged EventKind = "presence_changed"
	EventTyping          EventKind = "typing"
)

// Ephemeral reports whether events of kind k are best-effort and never persisted.
func (k EventKind) Ephemeral() bool {
	return k == EventTyping || k == EventSubscribed
}

// TypingSignal is the payload of a typing broadcast.
type TypingSignal struct {
	UserID   int  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

// Event is the envelope written on room channels.
type Event struct {
	Kind      EventKind     `json:"type"`
	RoomID    int           `json:"room_id"`
	MessageID int           `json:"message_id,omitempty"`
	Presence  *UserPresence `json:"presence,omitempty"`
	Typing    *TypingSignal `json:"typing,omitempty"`
	SentAt    time.Time     `json:"sent_at"`
}

// MessageEvent builds a message notification for roomID.
func MessageEvent(kind EventKind, roomID, messageID int) Event {
	return Event{Kind: kind, RoomID: roomID, MessageID: messageID, SentAt: time.Now().UTC()}
}

// PresenceEvent builds a presence notification for roomID.
func PresenceEvent(roomID int, p UserPresence) Event {
	return Event{Kind: EventPresenceChanged, RoomID: roomID, Presence: &p, SentAt: time.Now().UTC()}
}

// TypingEvent builds a typing broadcast for roomID.
func TypingEvent(roomID, userID int, isTyping bool) Event {
	return Event{Kind: EventTyping, RoomID: roomID, Typing: &TypingSignal{UserID: userID, IsTyping: isTyping}, SentAt: time.Now().UTC()}
}
