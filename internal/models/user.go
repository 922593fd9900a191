// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered account. The password hash is owned by the
// identity layer and never serialized.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Username       string         `gorm:"unique;not null" json:"username"`
	Password       string         `gorm:"not null" json:"-"`
	Name           string         `json:"name"`
	About          string         `json:"about"`
	Avatar         string         `json:"avatar"`
	Use24HourClock bool           `gorm:"default:false" json:"use_24_hour_clock"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// DisplayName returns the name shown in chat lists, falling back to the username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
