package models

import (
	"time"
)

// Meeting represents a scheduled padel meetup on one or more courts.
// Capacity is always NumCourts * 4 (two 2v2 teams per court).
type Meeting struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Place           string     `json:"place" gorm:"not null"`
	Slug            string     `json:"slug" gorm:"index"`
	StartTime       time.Time  `json:"start_time" gorm:"not null;index"`
	NumCourts       int        `json:"num_courts" gorm:"not null;default:1"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	AllowGuests     bool       `json:"allow_guests" gorm:"default:false"`
	CreatedByUserID string     `json:"created_by_user_id" gorm:"index"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Finalization pipeline progress. Each step stamps its own timestamp so a
	// restarted pass can skip work that already committed. A non-nil
	// MatchmakingGeneratedAt locks the meeting for edits and self-service leave.
	AutoConfirmProcessedAt *time.Time `json:"auto_confirm_processed_at,omitempty"`
	TruncationAppliedAt    *time.Time `json:"truncation_applied_at,omitempty"`
	MatchmakingGeneratedAt *time.Time `json:"matchmaking_generated_at,omitempty" gorm:"index"`

	// Relationships
	Participations []Participation `json:"participations,omitempty" gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE"`
	Matches        []Match         `json:"matches,omitempty" gorm:"foreignKey:MeetingID;constraint:OnDelete:CASCADE"`

	// Calculated fields (not stored in DB)
	JoinedCount     int64 `json:"joined_count,omitempty" gorm:"-"`
	WaitlistedCount int64 `json:"waitlisted_count,omitempty" gorm:"-"`
	AvailableSlots  int64 `json:"available_slots,omitempty" gorm:"-"`
}

// MaxParticipants returns the roster capacity for this meeting.
func (m *Meeting) MaxParticipants() int {
	return m.NumCourts * 4
}
