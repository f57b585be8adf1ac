package services

import (
	"math/rand"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchmakingService turns a meeting's confirmed roster into randomized 2v2
// court assignments.
type MatchmakingService struct {
	DB *gorm.DB
	// Rng drives the shuffle. Seeded from the clock by default; tests inject a
	// fixed seed for determinism.
	Rng *rand.Rand
}

func NewMatchmakingService(db *gorm.DB) *MatchmakingService {
	return &MatchmakingService{
		DB:  db,
		Rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CourtAssignment is one court's worth of players: the first two shuffled
// members form team A, the last two team B.
type CourtAssignment struct {
	CourtNumber int
	TeamA       [2]models.Participation
	TeamB       [2]models.Participation
}

// PartitionParticipants uniformly shuffles the participants (Fisher-Yates via
// rand.Shuffle, every permutation equally likely) and slices them into
// consecutive groups of 4, courts numbered from 1. A trailing remainder
// smaller than 4 is dropped rather than ever producing an under-sized team;
// upstream truncation guarantees there is none. Empty input yields no courts.
func PartitionParticipants(participants []models.Participation, rng *rand.Rand) []CourtAssignment {
	shuffled := make([]models.Participation, len(participants))
	copy(shuffled, participants)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var courts []CourtAssignment
	for i := 0; i+4 <= len(shuffled); i += 4 {
		chunk := shuffled[i : i+4]
		courts = append(courts, CourtAssignment{
			CourtNumber: i/4 + 1,
			TeamA:       [2]models.Participation{chunk[0], chunk[1]},
			TeamB:       [2]models.Participation{chunk[2], chunk[3]},
		})
	}
	return courts
}

// GenerateMatches partitions the meeting's JOINED participants and persists
// the resulting Match/Team/TeamMember rows atomically. Safe to call with an
// empty roster (creates nothing).
func (s *MatchmakingService) GenerateMatches(meetingID string) error {
	return s.GenerateMatchesTx(s.DB, meetingID)
}

// GenerateMatchesTx is GenerateMatches inside an existing transaction, used by
// the finalization pipeline so the match set and the meeting stamp can share a
// commit.
func (s *MatchmakingService) GenerateMatchesTx(db *gorm.DB, meetingID string) error {
	var participants []models.Participation
	if err := db.Where("meeting_id = ? AND status = ?", meetingID, models.StatusJoined).
		Find(&participants).Error; err != nil {
		return err
	}

	courts := PartitionParticipants(participants, s.Rng)
	if len(courts) == 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, court := range courts {
			match := models.Match{
				ID:          uuid.NewString(),
				MeetingID:   meetingID,
				CourtNumber: court.CourtNumber,
			}
			if err := tx.Create(&match).Error; err != nil {
				return err
			}

			sides := []struct {
				side    models.TeamSide
				players [2]models.Participation
			}{
				{models.TeamSideA, court.TeamA},
				{models.TeamSideB, court.TeamB},
			}
			for _, t := range sides {
				team := models.Team{
					ID:      uuid.NewString(),
					MatchID: match.ID,
					Side:    t.side,
				}
				if err := tx.Create(&team).Error; err != nil {
					return err
				}
				for _, p := range t.players {
					member := models.TeamMember{
						ID:     uuid.NewString(),
						TeamID: team.ID,
						UserID: p.UserID,
					}
					if err := tx.Create(&member).Error; err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// RegenerateMatches drops the meeting's existing match set and builds a fresh
// one. Used by admins to reshuffle before the meeting starts.
func (s *MatchmakingService) RegenerateMatches(meetingID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := deleteMatchSet(tx, meetingID); err != nil {
			return err
		}
		return s.GenerateMatchesTx(tx, meetingID)
	})
}

// deleteMatchSet removes every Match/Team/TeamMember row for a meeting.
func deleteMatchSet(tx *gorm.DB, meetingID string) error {
	var matchIDs []string
	if err := tx.Model(&models.Match{}).Where("meeting_id = ?", meetingID).
		Pluck("id", &matchIDs).Error; err != nil {
		return err
	}
	if len(matchIDs) == 0 {
		return nil
	}

	var teamIDs []string
	if err := tx.Model(&models.Team{}).Where("match_id IN ?", matchIDs).
		Pluck("id", &teamIDs).Error; err != nil {
		return err
	}
	if len(teamIDs) > 0 {
		if err := tx.Where("team_id IN ?", teamIDs).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", teamIDs).Delete(&models.Team{}).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", matchIDs).Delete(&models.Match{}).Error
}

// CourtSummary is the flattened view of one match used in notifications.
type CourtSummary struct {
	CourtNumber int      `json:"court_number"`
	TeamA       []string `json:"team_a"`
	TeamB       []string `json:"team_b"`
}

// MeetingCourtSummaries loads the persisted matches for a meeting and resolves
// member names for the matchmaking notification.
func MeetingCourtSummaries(db *gorm.DB, meetingID string) ([]CourtSummary, error) {
	var matches []models.Match
	err := db.Where("meeting_id = ?", meetingID).
		Order("court_number ASC").
		Preload("Teams.Members.User").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]CourtSummary, 0, len(matches))
	for _, m := range matches {
		summary := CourtSummary{CourtNumber: m.CourtNumber}
		for _, team := range m.Teams {
			names := make([]string, 0, len(team.Members))
			for _, member := range team.Members {
				name := member.User.Name
				if name == "" && member.User.Email != nil {
					name = *member.User.Email
				}
				if name == "" {
					name = "Unknown"
				}
				names = append(names, name)
			}
			switch team.Side {
			case models.TeamSideA:
				summary.TeamA = names
			case models.TeamSideB:
				summary.TeamB = names
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
