// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Contact is a directed edge from an owner to another user, carrying a block
// flag. At most one edge exists per ordered pair; the edge is only visible to
// its owner. Blocking is asymmetric: it never touches the reverse edge.
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;uniqueIndex:idx_contact_owner_target" json:"owner_id"`
	ContactID uint      `gorm:"not null;uniqueIndex:idx_contact_owner_target" json:"contact_id"`
	IsBlocked bool      `gorm:"default:false" json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Owner  *User `gorm:"foreignKey:OwnerID" json:"-"`
	Target *User `gorm:"foreignKey:ContactID" json:"user,omitempty"`
}

// TableName specifies the table name for GORM
func (Contact) TableName() string {
	return "contacts"
}
