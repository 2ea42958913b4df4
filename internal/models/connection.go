package models

import (
	"fmt"
	"time"
)

// ConnectionType is the kind of social edge between two users.
type ConnectionType string

const (
	ConnectionFriend      ConnectionType = "friend"
	ConnectionFollow      ConnectionType = "follow"
	ConnectionCollaborate ConnectionType = "collaborate"
)

// Valid reports whether t is a known connection type.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionFriend, ConnectionFollow, ConnectionCollaborate:
		return true
	}
	return false
}

// ConnectionState is the stored lifecycle state of a connection record.
type ConnectionState string

const (
	StatePending   ConnectionState = "pending"
	StateAccepted  ConnectionState = "accepted"
	StateDeclined  ConnectionState = "declined"
	StateBlocked   ConnectionState = "blocked"
	StateCancelled ConnectionState = "cancelled"
)

// Terminal reports whether no further response is possible in state s.
func (s ConnectionState) Terminal() bool {
	return s != StatePending
}

// Connection is the single stored record for an unordered pair and type.
type Connection struct {
	ID          int             `db:"id" json:"id"`
	RequesterID int             `db:"requester_id" json:"requester_id"`
	AddresseeID int             `db:"addressee_id" json:"addressee_id"`
	Type        ConnectionType  `db:"connection_type" json:"connection_type"`
	State       ConnectionState `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	RespondedAt *time.Time      `db:"responded_at" json:"responded_at,omitempty"`
}

// Involves reports whether userID is one side of the connection.
func (c Connection) Involves(userID int) bool {
	return c.RequesterID == userID || c.AddresseeID == userID
}

// Other returns the counterpart of userID.
func (c Connection) Other(userID int) int {
	if c.RequesterID == userID {
		return c.AddresseeID
	}
	return c.RequesterID
}

// ViewFor projects the record relative to viewer.
func (c Connection) ViewFor(viewer int) UserConnection {
	return UserConnection{
		ID:             c.ID,
		OtherUserID:    c.Other(viewer),
		ConnectionType: c.Type,
		Status:         c.State,
		IsRequester:    c.RequesterID == viewer,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		RespondedAt:    c.RespondedAt,
	}
}

// UserConnection is a connection as seen by one of its participants.
type UserConnection struct {
	ID             int             `json:"id"`
	OtherUserID    int             `json:"other_user_id"`
	ConnectionType ConnectionType  `json:"connection_type"`
	Status         ConnectionState `json:"status"`
	IsRequester    bool            `json:"is_requester"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	RespondedAt    *time.Time      `json:"responded_at,omitempty"`
}

// ConnectionStatus is the viewer-relative status of a pair. The zero value is StatusNone.
type ConnectionStatus int

const (
	StatusNone ConnectionStatus = iota
	StatusPending
	StatusReceived
	StatusAccepted
	StatusDeclined
	StatusBlocked
)

var connectionStatusNames = map[ConnectionStatus]string{
	StatusNone:     "none",
	StatusPending:  "pending",
	StatusReceived: "received",
	StatusAccepted: "accepted",
	StatusDeclined: "declined",
	StatusBlocked:  "blocked",
}

func (s ConnectionStatus) String() string {
	if name, ok := connectionStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	name, ok := connectionStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown connection status %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnectionStatus) UnmarshalText(text []byte) error {
	for status, name := range connectionStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown connection status %q", string(text))
}

// DeriveConnectionStatus computes the status of c as seen by viewer.
// A nil record, or a cancelled one, yields StatusNone.
func DeriveConnectionStatus(c *Connection, viewer int) ConnectionStatus {
	if c == nil {
		return StatusNone
	}
	switch c.State {
	case StatePending:
		if c.RequesterID == viewer {
			return StatusPending
		}
		return StatusReceived
	case StateAccepted:
		return StatusAccepted
	case StateDeclined:
		return StatusDeclined
	case StateBlocked:
		return StatusBlocked
	case StateCancelled:
		return StatusNone
	}
	return StatusNone
}

// precedence ranks statuses when a pair has records of several types.
func (s ConnectionStatus) precedence() int {
	switch s {
	case StatusBlocked:
		return 5
	case StatusAccepted:
		return 4
	case StatusPending, StatusReceived:
		return 3
	case StatusDeclined:
		return 2
	}
	return 0
}

// Outranks reports whether s should win over other when summarizing a pair.
func (s ConnectionStatus) Outranks(other ConnectionStatus) bool {
	return s.precedence() > other.precedence()
}

// ConnectionView is the answer to a status query between two users.
type ConnectionView struct {
	Status       ConnectionStatus `json:"status"`
	Type         ConnectionType   `json:"connection_type,omitempty"`
	IsRequester  bool             `json:"is_requester"`
	ConnectionID *int             `json:"connection_id,omitempty"`
}

// SummarizeConnections reduces all records of a pair to a single view for viewer.
func SummarizeConnections(records []Connection, viewer int) ConnectionView {
	view := ConnectionView{Status: StatusNone}
	for i := range records {
		rec := records[i]
		status := DeriveConnectionStatus(&rec, viewer)
		if status == StatusNone || !status.Outranks(view.Status) {
			continue
		}
		id := rec.ID
		view = ConnectionView{
			Status:       status,
			Type:         rec.Type,
			IsRequester:  rec.RequesterID == viewer,
			ConnectionID: &id,
		}
	}
	return view
}
