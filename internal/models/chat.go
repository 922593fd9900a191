// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatType distinguishes two-party private chats from group chats.
type ChatType string

const (
	// ChatTypePrivate is a chat with exactly two members.
	ChatTypePrivate ChatType = "private"
	// ChatTypeGroup is a chat with at least one admin and any number of members.
	ChatTypeGroup ChatType = "group"
)

// MemberRole is the role of a user within a chat.
type MemberRole string

const (
	// RoleAdmin marks the chat creator (and only the creator in current scope).
	RoleAdmin MemberRole = "admin"
	// RoleMember is every other participant.
	RoleMember MemberRole = "member"
)

// Chat represents a private or group conversation.
// Private chats have no stored name; clients derive it from the peer.
type Chat struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Type        ChatType       `gorm:"type:varchar(10);not null;index" json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Avatar      string         `json:"avatar"`
	CreatorID   uint           `gorm:"not null" json:"creator_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Members  []ChatMember `gorm:"foreignKey:ChatID" json:"members,omitempty"`
	Messages []Message    `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

// MemberIDs returns the user ids of all chat members.
func (c *Chat) MemberIDs() []uint {
	ids := make([]uint, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// HasMember reports whether userID is a member of the chat.
func (c *Chat) HasMember(userID uint) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ChatMember joins a user to a chat, carrying role and per-user unread count.
type ChatMember struct {
	ChatID      uint       `gorm:"primaryKey" json:"chat_id"`
	UserID      uint       `gorm:"primaryKey" json:"user_id"`
	Role        MemberRole `gorm:"type:varchar(10);default:'member'" json:"role"`
	UnreadCount int        `gorm:"default:0" json:"unread_count"`
	JoinedAt    time.Time  `gorm:"autoCreateTime" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM
func (ChatMember) TableName() string {
	return "chat_members"
}

// Message is a chat message. Notification messages are synthesized by the
// domain layer (membership/lifecycle changes) and skip author validation.
// Messages are immutable once created; the soft-delete flag exists in storage
// but no mutation sets it.
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ChatID         uint           `gorm:"not null;index" json:"chat_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	IsNotification bool           `gorm:"default:false" json:"is_notification"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
