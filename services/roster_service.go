package services

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RosterService is the roster/waitlist state machine. Every mutating method
// runs as one serializable transaction: read capacity and position, decide the
// new status, write — with no observable intermediate state. Two concurrent
// joins racing for the last slot resolve to exactly one JOINED and one
// WAITLISTED, never two of either.
type RosterService struct {
	DB     *gorm.DB
	Notify Notifier
	// Now is the injected clock. All time-window checks (24h confirm, 72h
	// guest, 15m lock) go through it so tests can pin the clock.
	Now func() time.Time

	txOpts []*sql.TxOptions
}

func NewRosterService(db *gorm.DB, notify Notifier) *RosterService {
	return &RosterService{
		DB:     db,
		Notify: notify,
		Now:    time.Now,
		txOpts: []*sql.TxOptions{{Isolation: sql.LevelSerializable}},
	}
}

func (s *RosterService) tx(fn func(tx *gorm.DB) error) error {
	return wrapTxError(s.DB.Transaction(fn, s.txOpts...))
}

// promotion carries the data needed to notify a promoted player after the
// transaction that promoted them has committed.
type promotion struct {
	User    models.User
	Meeting models.Meeting
}

func (s *RosterService) notifyPromotion(p *promotion) {
	if p == nil || s.Notify == nil {
		return
	}
	s.Notify.WaitlistPromotion(p.User, p.Meeting)
}

// JoinMeeting places the user on the roster if a slot is free, otherwise on
// the waitlist. Calling it again while already JOINED or WAITLISTED is a
// no-op that returns the current status.
func (s *RosterService) JoinMeeting(meetingID, userID string) (models.ParticipationStatus, error) {
	var result models.ParticipationStatus

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		now := s.Now()
		if !meeting.StartTime.After(now) {
			return ErrMeetingStarted
		}

		var joinedCount int64
		if err := tx.Model(&models.Participation{}).
			Where("meeting_id = ? AND status = ?", meetingID, models.StatusJoined).
			Count(&joinedCount).Error; err != nil {
			return err
		}

		var existing models.Participation
		err := tx.Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&existing).Error
		hasExisting := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if hasExisting && (existing.Status == models.StatusJoined || existing.Status == models.StatusWaitlisted) {
			result = existing.Status
			return nil
		}

		status := models.StatusWaitlisted
		if joinedCount < int64(meeting.MaxParticipants()) {
			status = models.StatusJoined
		}

		if hasExisting {
			if err := rejoin(tx, &existing, status, now); err != nil {
				return err
			}
		} else {
			if err := joinAsNew(tx, meetingID, userID, nil, status, now); err != nil {
				return err
			}
		}

		result = status
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// joinAsNew creates a fresh participation row.
func joinAsNew(tx *gorm.DB, meetingID, userID string, addedBy *string, status models.ParticipationStatus, now time.Time) error {
	p := models.Participation{
		ID:            uuid.NewString(),
		MeetingID:     meetingID,
		UserID:        userID,
		Status:        status,
		AddedByUserID: addedBy,
	}
	if status == models.StatusJoined {
		p.JoinedAt = &now
	} else {
		p.WaitlistedAt = &now
	}
	return tx.Create(&p).Error
}

// rejoin reuses a LEFT or REMOVED_BY_TRUNCATION row, clearing the exit
// timestamps and the stale confirmation.
func rejoin(tx *gorm.DB, p *models.Participation, status models.ParticipationStatus, now time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"joined_at":     nil,
		"waitlisted_at": nil,
		"left_at":       nil,
		"removed_at":    nil,
		"confirmed_at":  nil,
	}
	if status == models.StatusJoined {
		updates["joined_at"] = now
	} else {
		updates["waitlisted_at"] = now
	}
	return tx.Model(&models.Participation{}).Where("id = ?", p.ID).Updates(updates).Error
}

// promoteFromWaitlist flips the earliest-waitlisted participation to JOINED.
// Ordering by waitlisted_at keeps promotion strictly FIFO. Returns nil when
// the waitlist is empty.
func promoteFromWaitlist(tx *gorm.DB, meeting *models.Meeting, now time.Time) (*promotion, error) {
	var first models.Participation
	err := tx.Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusWaitlisted).
		Order("waitlisted_at ASC").
		First(&first).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	err = tx.Model(&models.Participation{}).Where("id = ?", first.ID).Updates(map[string]interface{}{
		"status":        models.StatusJoined,
		"joined_at":     now,
		"waitlisted_at": nil,
	}).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := tx.First(&user, "id = ?", first.UserID).Error; err != nil {
		return nil, err
	}
	return &promotion{User: user, Meeting: *meeting}, nil
}

// LeaveMeeting marks the caller LEFT and, if they held a roster slot, promotes
// the first waitlisted player into it. Leaving is refused once the meeting has
// started, once matchmaking exists, or inside the 15-minute lock when every
// joined player has confirmed.
func (s *RosterService) LeaveMeeting(meetingID, userID string) error {
	var promo *promotion

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		now := s.Now()
		if !now.Before(meeting.StartTime) {
			return ErrMeetingStarted
		}
		if meeting.MatchmakingGeneratedAt != nil {
			return ErrMatchmakingGenerated
		}

		minutesUntilStart := meeting.StartTime.Sub(now).Minutes()
		if minutesUntilStart < 15 && minutesUntilStart > 0 {
			var joined []models.Participation
			if err := tx.Where("meeting_id = ? AND status = ?", meetingID, models.StatusJoined).
				Find(&joined).Error; err != nil {
				return err
			}
			allConfirmed := true
			for _, p := range joined {
				if p.ConfirmedAt == nil {
					allConfirmed = false
					break
				}
			}
			if allConfirmed && len(joined) > 0 {
				return ErrMeetingLocked
			}
		}

		var err error
		promo, err = removeFromRoster(tx, &meeting, userID, now)
		return err
	})
	if err != nil {
		return err
	}

	s.notifyPromotion(promo)
	return nil
}

// removeFromRoster marks the participation LEFT and runs promotion when the
// player held a JOINED slot. Missing or already-LEFT participations are a
// no-op success.
func removeFromRoster(tx *gorm.DB, meeting *models.Meeting, userID string, now time.Time) (*promotion, error) {
	var participation models.Participation
	err := tx.Where("meeting_id = ? AND user_id = ?", meeting.ID, userID).First(&participation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if participation.Status == models.StatusLeft {
		return nil, nil
	}

	wasJoined := participation.Status == models.StatusJoined

	err = tx.Model(&models.Participation{}).Where("id = ?", participation.ID).Updates(map[string]interface{}{
		"status":       models.StatusLeft,
		"left_at":      now,
		"confirmed_at": nil,
	}).Error
	if err != nil {
		return nil, err
	}

	if !wasJoined {
		return nil, nil
	}
	return promoteFromWaitlist(tx, meeting, now)
}

// AdminRemovePlayer is LeaveMeeting without the time and lock constraints:
// admins may kick players even last minute or after matchmaking.
func (s *RosterService) AdminRemovePlayer(meetingID, userID string) error {
	var promo *promotion

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		var err error
		promo, err = removeFromRoster(tx, &meeting, userID, s.Now())
		return err
	})
	if err != nil {
		return err
	}

	s.notifyPromotion(promo)
	return nil
}

// ConfirmAttendance stamps confirmedAt for a JOINED participation. The window
// is exactly the 24 hours ending at start time. Confirming while not JOINED is
// a silent no-op.
func (s *RosterService) ConfirmAttendance(meetingID, userID string) error {
	return s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		now := s.Now()
		untilStart := meeting.StartTime.Sub(now)
		if untilStart < 0 {
			return ErrMeetingStarted
		}
		if untilStart > 24*time.Hour {
			return ErrConfirmWindowClosed
		}

		return tx.Model(&models.Participation{}).
			Where("meeting_id = ? AND user_id = ? AND status = ?", meetingID, userID, models.StatusJoined).
			Update("confirmed_at", now).Error
	})
}

// AdminAddPlayer puts a player straight onto the roster, pre-confirmed and
// bypassing the capacity check: admin-curated additions always get a
// guaranteed slot, even over capacity. With no userID a new guest user is
// created owned by the acting admin.
func (s *RosterService) AdminAddPlayer(meetingID string, userID *string, name, adminID string) (string, error) {
	var targetID string

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		now := s.Now()
		var addedBy *string

		if userID != nil && *userID != "" {
			var user models.User
			if err := tx.First(&user, "id = ?", *userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			targetID = user.ID
		} else {
			guest := models.User{
				ID:      uuid.NewString(),
				Name:    name,
				IsGuest: true,
			}
			if err := tx.Create(&guest).Error; err != nil {
				return err
			}
			targetID = guest.ID
			addedBy = &adminID
		}

		var existing models.Participation
		err := tx.Where("meeting_id = ? AND user_id = ?", meetingID, targetID).First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			p := models.Participation{
				ID:            uuid.NewString(),
				MeetingID:     meetingID,
				UserID:        targetID,
				Status:        models.StatusJoined,
				JoinedAt:      &now,
				ConfirmedAt:   &now,
				AddedByUserID: addedBy,
			}
			return tx.Create(&p).Error
		}

		return tx.Model(&models.Participation{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"status":        models.StatusJoined,
			"joined_at":     now,
			"confirmed_at":  now,
			"waitlisted_at": nil,
			"left_at":       nil,
			"removed_at":    nil,
		}).Error
	})
	if err != nil {
		return "", err
	}
	return targetID, nil
}

// AddGuest creates a guest user and runs the normal join capacity logic for
// them, tagging the participation with the sponsor. Only allowed when the
// meeting accepts guests and inside the 72h window before start.
func (s *RosterService) AddGuest(meetingID, name, sponsorID string) (models.ParticipationStatus, string, error) {
	var (
		result  models.ParticipationStatus
		guestID string
	)

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		if !meeting.AllowGuests {
			return ErrGuestsNotAllowed
		}

		now := s.Now()
		untilStart := meeting.StartTime.Sub(now)
		if untilStart < 0 {
			return ErrMeetingStarted
		}
		if untilStart > 72*time.Hour {
			return ErrGuestWindowClosed
		}

		var joinedCount int64
		if err := tx.Model(&models.Participation{}).
			Where("meeting_id = ? AND status = ?", meetingID, models.StatusJoined).
			Count(&joinedCount).Error; err != nil {
			return err
		}

		guest := models.User{
			ID:      uuid.NewString(),
			Name:    name,
			IsGuest: true,
		}
		if err := tx.Create(&guest).Error; err != nil {
			return err
		}
		guestID = guest.ID

		status := models.StatusWaitlisted
		if joinedCount < int64(meeting.MaxParticipants()) {
			status = models.StatusJoined
		}
		if err := joinAsNew(tx, meetingID, guest.ID, &sponsorID, status, now); err != nil {
			return err
		}

		result = status
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return result, guestID, nil
}

// guestOwnedBy loads the guest's participation and verifies the caller is the
// sponsor that added them.
func guestOwnedBy(tx *gorm.DB, meetingID, guestUserID, callerID string) (*models.Participation, error) {
	var participation models.Participation
	err := tx.Where("meeting_id = ? AND user_id = ?", meetingID, guestUserID).First(&participation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if participation.AddedByUserID == nil || *participation.AddedByUserID != callerID {
		return nil, ErrNotGuestOwner
	}
	return &participation, nil
}

// RemoveGuest pulls a sponsored guest out of the meeting. Sponsors can always
// remove their guest: the start-time and lock constraints of LeaveMeeting do
// not apply here. Promotion still runs when the guest held a slot.
func (s *RosterService) RemoveGuest(meetingID, guestUserID, callerID string) error {
	var promo *promotion

	err := s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		participation, err := guestOwnedBy(tx, meetingID, guestUserID, callerID)
		if err != nil {
			return err
		}
		if participation == nil || participation.Status == models.StatusLeft {
			return nil
		}

		promo, err = removeFromRoster(tx, &meeting, guestUserID, s.Now())
		return err
	})
	if err != nil {
		return err
	}

	s.notifyPromotion(promo)
	return nil
}

// ConfirmGuest confirms attendance on behalf of a sponsored guest, under the
// same 24h window as self-confirmation.
func (s *RosterService) ConfirmGuest(meetingID, guestUserID, callerID string) error {
	return s.tx(func(tx *gorm.DB) error {
		var meeting models.Meeting
		if err := tx.First(&meeting, "id = ?", meetingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}

		participation, err := guestOwnedBy(tx, meetingID, guestUserID, callerID)
		if err != nil {
			return err
		}
		if participation == nil {
			return ErrParticipationNotFound
		}

		now := s.Now()
		untilStart := meeting.StartTime.Sub(now)
		if untilStart < 0 {
			return ErrMeetingStarted
		}
		if untilStart > 24*time.Hour {
			return ErrConfirmWindowClosed
		}

		return tx.Model(&models.Participation{}).
			Where("id = ? AND status = ?", participation.ID, models.StatusJoined).
			Update("confirmed_at", now).Error
	})
}

// ---- HTTP handlers -------------------------------------------------------

func (s *RosterService) Join(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	userID := c.Locals("user_id").(string)

	status, err := s.JoinMeeting(meetingID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": status, "message": "You are now " + string(status)})
}

func (s *RosterService) Leave(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	userID := c.Locals("user_id").(string)

	if err := s.LeaveMeeting(meetingID, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "left meeting"})
}

func (s *RosterService) Confirm(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	userID := c.Locals("user_id").(string)

	if err := s.ConfirmAttendance(meetingID, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "attendance confirmed"})
}

func (s *RosterService) AdminRemove(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	targetID := c.Params("user_id")

	if err := s.AdminRemovePlayer(meetingID, targetID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "player removed"})
}

func (s *RosterService) AdminConfirm(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	targetID := c.Params("user_id")

	if err := s.ConfirmAttendance(meetingID, targetID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "player confirmed"})
}

func (s *RosterService) AdminAdd(c *fiber.Ctx) error {
	type Req struct {
		UserID *string `json:"user_id,omitempty"`
		Name   string  `json:"name,omitempty"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if (req.UserID == nil || *req.UserID == "") && req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id or name is required"})
	}

	meetingID := c.Params("id")
	adminID := c.Locals("user_id").(string)

	targetID, err := s.AdminAddPlayer(meetingID, req.UserID, req.Name, adminID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": targetID, "status": models.StatusJoined})
}

func (s *RosterService) GuestAdd(c *fiber.Ctx) error {
	type Req struct {
		Name string `json:"name" validate:"required"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	meetingID := c.Params("id")
	sponsorID := c.Locals("user_id").(string)

	status, guestID, err := s.AddGuest(meetingID, req.Name, sponsorID)
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("✅ Guest %s added to meeting %s by %s (%s)", guestID, meetingID, sponsorID, status)
	return c.JSON(fiber.Map{"guest_user_id": guestID, "status": status})
}

func (s *RosterService) GuestRemove(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	guestID := c.Params("guest_user_id")
	callerID := c.Locals("user_id").(string)

	if err := s.RemoveGuest(meetingID, guestID, callerID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "guest removed"})
}

func (s *RosterService) GuestConfirm(c *fiber.Ctx) error {
	meetingID := c.Params("id")
	guestID := c.Params("guest_user_id")
	callerID := c.Locals("user_id").(string)

	if err := s.ConfirmGuest(meetingID, guestID, callerID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "guest confirmed"})
}
