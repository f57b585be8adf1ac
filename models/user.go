package models

import (
	"time"
)

// User is the local identity row. Guests are created by admins or sponsors,
// carry no login credential and usually no email; they are owned through the
// participation's AddedByUserID, not here.
type User struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	Name              string    `json:"name" gorm:"index;not null"`
	Email             *string   `json:"email,omitempty" gorm:"index"`
	IsGuest           bool      `json:"is_guest" gorm:"default:false"`
	IsAdmin           bool      `json:"is_admin" gorm:"default:false"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// PushSubscription stores one browser push endpoint for a user. A user may
// have several (one per device/browser).
type PushSubscription struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	Endpoint  string    `json:"endpoint" gorm:"not null;uniqueIndex"`
	P256dh    string    `json:"p256dh" gorm:"not null"`
	Auth      string    `json:"auth" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
