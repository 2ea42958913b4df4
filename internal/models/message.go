package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// MessageType classifies the content of a chat message.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageCode   MessageType = "code"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageCode, MessageSystem:
		return true
	}
	return false
}

// Metadata is an opaque JSON object attached to a message.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("metadata: unsupported column type")
	}
	out := Metadata{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// ChatMessage is an entry in a room's append-only message log.
type ChatMessage struct {
	ID           int         `db:"id" json:"id"`
	RoomID       int         `db:"room_id" json:"room_id"`
	SenderID     int         `db:"sender_id" json:"sender_id"`
	SenderName   string      `db:"-" json:"sender_name"`
	SenderPhoto  *string     `db:"-" json:"sender_photo,omitempty"`
	Content      string      `db:"content" json:"content"`
	Type         MessageType `db:"message_type" json:"message_type"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	EditedAt     *time.Time  `db:"edited_at" json:"edited_at,omitempty"`
	ReplyTo      *int        `db:"reply_to" json:"reply_to,omitempty"`
	ReplyContent *string     `db:"reply_content" json:"reply_content,omitempty"`
	Metadata     Metadata    `db:"metadata" json:"metadata"`
}

// Less orders messages by creation time, breaking ties with the sequence id.
func (m ChatMessage) Less(other ChatMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// NewMessage carries the fields needed to append a message.
type NewMessage struct {
	RoomID   int
	SenderID int
	Content  string
	Type     MessageType
	ReplyTo  *int
	Metadata Metadata
}

// AppendInput is the caller-facing request to append a message.
type AppendInput struct {
	RoomID   int         `json:"room_id"`
	Content  string      `json:"content"`
	Type     MessageType `json:"message_type,omitempty"`
	ReplyTo  *int        `json:"reply_to,omitempty"`
	Metadata Metadata    `json:"metadata,omitempty"`
}
