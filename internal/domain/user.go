// Package domain contains core domain types for the support chat application.
package domain

import (
	"time"
)

// User is the anonymous owner of one or more chats.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Owns reports whether the chat belongs to this user.
func (u *User) Owns(c *Chat) bool {
	return c != nil && c.OwnerID == u.UserID
}
