package models

import "time"

// RoomType distinguishes direct conversations from shared rooms.
type RoomType string

const (
	RoomDirect        RoomType = "direct"
	RoomGroup         RoomType = "group"
	RoomCollaboration RoomType = "collaboration"
)

// Valid reports whether t is a known room type.
func (t RoomType) Valid() bool {
	switch t {
	case RoomDirect, RoomGroup, RoomCollaboration:
		return true
	}
	return false
}

// MemberRole is a participant's role within a room.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// MessageSummary is the latest-message preview shown in room listings.
type MessageSummary struct {
	ID         int         `json:"id"`
	SenderID   int         `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Content    string      `json:"content"`
	Type       MessageType `json:"message_type"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ChatRoom is a room as seen by one member.
type ChatRoom struct {
	ID               int             `db:"id" json:"id"`
	Name             *string         `db:"name" json:"name,omitempty"`
	Description      *string         `db:"description" json:"description,omitempty"`
	Type             RoomType        `db:"room_type" json:"type"`
	IsPrivate        bool            `db:"is_private" json:"is_private"`
	CreatedBy        int             `db:"created_by" json:"created_by"`
	ParticipantCount int             `db:"participant_count" json:"participant_count"`
	LatestMessage    *MessageSummary `db:"-" json:"latest_message,omitempty"`
	UnreadCount      int             `db:"unread_count" json:"unread_count"`
	LastReadAt       *time.Time      `db:"last_read_at" json:"last_read_at,omitempty"`
	LastActivityAt   time.Time       `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// RoomMember models membership and per-member read state.
type RoomMember struct {
	RoomID            int        `db:"room_id" json:"room_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	Role              MemberRole `db:"role" json:"role"`
	LastReadAt        *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
	LastReadMessageID int        `db:"last_read_message_id" json:"-"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
}

// NewRoom describes a shared room to create.
type NewRoom struct {
	Name        string
	Description *string
	Type        RoomType
	IsPrivate   bool
	CreatedBy   int
}
