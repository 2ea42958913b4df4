package models

import "time"

// PresenceStatus is a user's availability signal.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

// UserPresence is the last reported presence of a user.
type UserPresence struct {
	UserID        int            `json:"user_id"`
	Status        PresenceStatus `json:"status"`
	LastSeen      time.Time      `json:"last_seen"`
	CurrentRoomID *int           `json:"current_room_id,omitempty"`
}

// Offline returns the presence of a user with no row.
func Offline(userID int) UserPresence {
	return UserPresence{UserID: userID, Status: PresenceOffline}
}
