package models

import "time"

// Profile is the read-only mirror of a user's public profile.
type Profile struct {
	UserID      int     `db:"user_id" json:"user_id"`
	Username    string  `db:"username" json:"username"`
	DisplayName string  `db:"display_name" json:"display_name"`
	PhotoURL    *string `db:"photo_url" json:"photo_url,omitempty"`
	Bio         *string `db:"bio" json:"bio,omitempty"`
}

// Name returns the best label for the profile.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// UserForCollaboration is the discovery projection of another user.
type UserForCollaboration struct {
	Profile
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	ConnectionID     *int             `json:"connection_id,omitempty"`
	PresenceStatus   PresenceStatus   `json:"presence_status"`
	LastSeen         *time.Time       `json:"last_seen,omitempty"`
}
