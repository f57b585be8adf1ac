package services

import (
	"errors"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// MeetingService covers the admin lifecycle of meetings: creation, editing,
// deletion, the guest toggle, plus the read endpoints everyone uses.
type MeetingService struct {
	DB          *gorm.DB
	Matchmaking *MatchmakingService
	Now         func() time.Time
}

func NewMeetingService(db *gorm.DB, matchmaking *MatchmakingService) *MeetingService {
	return &MeetingService{DB: db, Matchmaking: matchmaking, Now: time.Now}
}

type meetingRequest struct {
	Place       string   `json:"place"`
	StartTime   string   `json:"start_time"` // RFC3339
	NumCourts   int      `json:"num_courts"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	AllowGuests *bool    `json:"allow_guests,omitempty"`
}

func (s *MeetingService) CreateMeeting(c *fiber.Ctx) error {
	var req meetingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Place == "" || req.StartTime == "" {
		return c.Status(400).JSON(fiber.Map{"error": "place and start_time are required"})
	}
	if req.NumCourts <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "num_courts must be a positive integer"})
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
	}

	meeting := models.Meeting{
		ID:              uuid.NewString(),
		Place:           req.Place,
		Slug:            slug.Make(req.Place),
		StartTime:       startTime,
		NumCourts:       req.NumCourts,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		CreatedByUserID: c.Locals("user_id").(string),
	}
	if req.AllowGuests != nil {
		meeting.AllowGuests = *req.AllowGuests
	}

	if err := s.DB.Create(&meeting).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}
	return c.Status(201).JSON(meeting)
}

// UpdateMeetingDetails rewrites the editable fields. Editing is refused once
// matchmaking has been generated: the teams were built against this roster
// and schedule.
func (s *MeetingService) UpdateMeetingDetails(meetingID, place string, startTime time.Time, numCourts int, lat, lng *float64) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}
		if meeting.MatchmakingGeneratedAt != nil {
			return ErrMeetingEditLocked
		}

		return tx.Model(&meeting).Updates(map[string]interface{}{
			"place":      place,
			"slug":       slug.Make(place),
			"start_time": startTime,
			"num_courts": numCourts,
			"latitude":   lat,
			"longitude":  lng,
		}).Error
	})
}

func (s *MeetingService) UpdateMeeting(c *fiber.Ctx) error {
	var req meetingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Place == "" || req.StartTime == "" || req.NumCourts <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "place, start_time and num_courts are required"})
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
	}

	if err := s.UpdateMeetingDetails(c.Params("id"), req.Place, startTime, req.NumCourts, req.Latitude, req.Longitude); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "meeting updated"})
}

// DeleteMeeting cascades participations and matches.
func (s *MeetingService) DeleteMeeting(c *fiber.Ctx) error {
	meetingID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}
		if err := deleteMatchSet(tx, meetingID); err != nil {
			return err
		}
		if err := tx.Where("meeting_id = ?", meetingID).Delete(&models.Participation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&meeting).Error
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "meeting deleted"})
}

// SetGuestsAllowed toggles the flag gating guest invites.
func (s *MeetingService) SetGuestsAllowed(meetingID string, allowed bool) error {
	res := s.DB.Model(&models.Meeting{}).Where("id = ?", meetingID).Update("allow_guests", allowed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (s *MeetingService) UpdateGuestsAllowed(c *fiber.Ctx) error {
	type Req struct {
		AllowGuests bool `json:"allow_guests"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if err := s.SetGuestsAllowed(c.Params("id"), req.AllowGuests); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"allow_guests": req.AllowGuests})
}

// GetAllMeetings lists upcoming meetings with roster counts.
func (s *MeetingService) GetAllMeetings(c *fiber.Ctx) error {
	var meetings []models.Meeting
	err := s.DB.Order("start_time ASC").Find(&meetings).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching meetings"})
	}

	for i := range meetings {
		s.fillCounts(&meetings[i])
	}
	return c.JSON(meetings)
}

func (s *MeetingService) fillCounts(meeting *models.Meeting) {
	s.DB.Model(&models.Participation{}).
		Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusJoined).
		Count(&meeting.JoinedCount)
	s.DB.Model(&models.Participation{}).
		Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusWaitlisted).
		Count(&meeting.WaitlistedCount)
	meeting.AvailableSlots = int64(meeting.MaxParticipants()) - meeting.JoinedCount
	if meeting.AvailableSlots < 0 {
		meeting.AvailableSlots = 0
	}
}

// GetMeetingByID returns the meeting with its roster, waitlist and (once
// generated) the court assignments.
func (s *MeetingService) GetMeetingByID(c *fiber.Ctx) error {
	var meeting models.Meeting
	err := s.DB.Preload("Participations.User").
		Preload("Matches.Teams.Members.User").
		First(&meeting, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "meeting not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching meeting"})
	}

	s.fillCounts(&meeting)
	return c.JSON(meeting)
}

// RegenerateMatches lets an admin reshuffle the courts for a meeting whose
// matchmaking already ran.
func (s *MeetingService) RegenerateMatches(c *fiber.Ctx) error {
	meetingID := c.Params("id")

	var meeting models.Meeting
	if err := s.DB.First(&meeting, "id = ?", meetingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "meeting not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching meeting"})
	}

	if err := s.Matchmaking.RegenerateMatches(meetingID); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to regenerate matches"})
	}

	now := s.Now()
	if err := s.DB.Model(&meeting).Update("matchmaking_generated_at", now).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to stamp matchmaking"})
	}
	return c.JSON(fiber.Map{"message": "matches regenerated"})
}
