package models

import (
	"time"
)

type TeamSide string

const (
	TeamSideA TeamSide = "A"
	TeamSideB TeamSide = "B"
)

// Match is one court's game for a meeting, produced by matchmaking. The whole
// Match/Team/TeamMember set for a meeting is created in one transaction and
// never mutated afterward; regeneration deletes and recreates everything.
type Match struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	MeetingID   string    `json:"meeting_id" gorm:"not null;uniqueIndex:idx_meeting_court"`
	CourtNumber int       `json:"court_number" gorm:"not null;uniqueIndex:idx_meeting_court"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`

	Teams []Team `json:"teams,omitempty" gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
}

// Team is one side of a match. Exactly two per match, exactly two members each.
type Team struct {
	ID      string   `json:"id" gorm:"primaryKey"`
	MatchID string   `json:"match_id" gorm:"not null;index"`
	Side    TeamSide `json:"side" gorm:"type:varchar(1);not null"`

	Members []TeamMember `json:"members,omitempty" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
}

type TeamMember struct {
	ID     string `json:"id" gorm:"primaryKey"`
	TeamID string `json:"team_id" gorm:"not null;index"`
	UserID string `json:"user_id" gorm:"not null;index"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
