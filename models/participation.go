package models

import (
	"time"
)

type ParticipationStatus string

const (
	StatusJoined              ParticipationStatus = "JOINED"
	StatusWaitlisted          ParticipationStatus = "WAITLISTED"
	StatusLeft                ParticipationStatus = "LEFT"
	StatusRemovedByTruncation ParticipationStatus = "REMOVED_BY_TRUNCATION"
)

// Participation is the single row tying a user to a meeting. It is upserted on
// re-join and never deleted, so the timestamps keep the full history of the
// user's path through the roster.
type Participation struct {
	ID        string              `json:"id" gorm:"primaryKey"`
	MeetingID string              `json:"meeting_id" gorm:"not null;uniqueIndex:idx_meeting_user"`
	UserID    string              `json:"user_id" gorm:"not null;uniqueIndex:idx_meeting_user"`
	Status    ParticipationStatus `json:"status" gorm:"type:varchar(32);not null;index"`

	JoinedAt     *time.Time `json:"joined_at,omitempty"`
	WaitlistedAt *time.Time `json:"waitlisted_at,omitempty"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	RemovedAt    *time.Time `json:"removed_at,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ReminderSent bool       `json:"reminder_sent" gorm:"default:false"`

	// AddedByUserID is set when this row represents a guest added by a sponsor
	// (self-service guest invite) or by an admin. The guest user is referenced,
	// not owned: orphaned guests are tolerated.
	AddedByUserID *string `json:"added_by_user_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
