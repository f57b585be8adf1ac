package services

import (
	"log"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FinalizationService runs the time-driven passes over upcoming meetings:
// auto-confirm, roster truncation, matchmaking and the reminder sweep. Both
// passes are idempotent — the matchmaking_generated_at gate and the
// reminder_sent latch make overlapping or duplicated invocations safe without
// any mutual exclusion.
type FinalizationService struct {
	DB          *gorm.DB
	Matchmaking *MatchmakingService
	Notify      Notifier
	Now         func() time.Time
}

func NewFinalizationService(db *gorm.DB, matchmaking *MatchmakingService, notify Notifier) *FinalizationService {
	return &FinalizationService{
		DB:          db,
		Matchmaking: matchmaking,
		Notify:      notify,
		Now:         time.Now,
	}
}

// RunFinalizationPass selects every meeting starting within 30 minutes whose
// matchmaking has not been generated yet and finalizes each one. One meeting's
// failure is logged and does not abort the rest of the pass.
func (s *FinalizationService) RunFinalizationPass() error {
	now := s.Now()
	cutoff := now.Add(30 * time.Minute)

	var meetings []models.Meeting
	err := s.DB.Where("start_time <= ? AND matchmaking_generated_at IS NULL", cutoff).
		Find(&meetings).Error
	if err != nil {
		log.Printf("❌ [FINALIZE] selecting meetings: %v", err)
		return err
	}

	for i := range meetings {
		if err := s.finalizeMeeting(&meetings[i]); err != nil {
			log.Printf("❌ [FINALIZE] meeting %s: %v", meetings[i].ID, err)
			continue
		}
		log.Printf("✅ [FINALIZE] meeting %s at %s finalized", meetings[i].ID, meetings[i].Place)
	}
	return nil
}

// finalizeMeeting runs the three pipeline steps for one meeting. Each step
// commits its own stamp and is guarded by that stamp's nil-check, so a pass
// that died halfway resumes exactly where it stopped instead of redoing work —
// re-running truncation after matches exist would corrupt the assignments.
func (s *FinalizationService) finalizeMeeting(meeting *models.Meeting) error {
	if meeting.AutoConfirmProcessedAt == nil {
		if err := s.autoConfirm(meeting); err != nil {
			return err
		}
	}
	if meeting.TruncationAppliedAt == nil {
		if err := s.truncate(meeting); err != nil {
			return err
		}
	}
	if meeting.MatchmakingGeneratedAt == nil {
		if err := s.generateAndNotify(meeting); err != nil {
			return err
		}
	}
	return nil
}

// autoConfirm stamps confirmedAt for every JOINED participation lacking one.
func (s *FinalizationService) autoConfirm(meeting *models.Meeting) error {
	now := s.Now()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Participation{}).
			Where("meeting_id = ? AND status = ? AND confirmed_at IS NULL", meeting.ID, models.StatusJoined).
			Update("confirmed_at", now).Error
		if err != nil {
			return err
		}
		if err := tx.Model(meeting).Update("auto_confirm_processed_at", now).Error; err != nil {
			return err
		}
		meeting.AutoConfirmProcessedAt = &now
		return nil
	})
}

// truncate evicts the last joiners until the roster is a multiple of 4. The
// cut is deterministic: latest joined_at goes first — never a random choice.
func (s *FinalizationService) truncate(meeting *models.Meeting) error {
	now := s.Now()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var joinedCount int64
		err := tx.Model(&models.Participation{}).
			Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusJoined).
			Count(&joinedCount).Error
		if err != nil {
			return err
		}

		remainder := int(joinedCount % 4)
		if remainder > 0 {
			var toRemove []models.Participation
			err = tx.Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusJoined).
				Order("joined_at DESC").
				Limit(remainder).
				Find(&toRemove).Error
			if err != nil {
				return err
			}

			ids := make([]string, len(toRemove))
			for i, p := range toRemove {
				ids[i] = p.ID
			}
			err = tx.Model(&models.Participation{}).Where("id IN ?", ids).Updates(map[string]interface{}{
				"status":     models.StatusRemovedByTruncation,
				"removed_at": now,
			}).Error
			if err != nil {
				return err
			}
			log.Printf("✂️  [FINALIZE] meeting %s: truncated %d of %d players", meeting.ID, remainder, joinedCount)
		}

		if err := tx.Model(meeting).Update("truncation_applied_at", now).Error; err != nil {
			return err
		}
		meeting.TruncationAppliedAt = &now
		return nil
	})
}

// generateAndNotify persists the match set, stamps the idempotency gate and
// queues the court-assignment notifications. The stamp flips the meeting into
// its locked-for-edits state.
func (s *FinalizationService) generateAndNotify(meeting *models.Meeting) error {
	now := s.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.Matchmaking.GenerateMatchesTx(tx, meeting.ID); err != nil {
			return err
		}
		if err := tx.Model(meeting).Update("matchmaking_generated_at", now).Error; err != nil {
			return err
		}
		meeting.MatchmakingGeneratedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	// Notify after commit; delivery failures never roll back steps 1-3.
	if s.Notify == nil {
		return nil
	}
	courts, err := MeetingCourtSummaries(s.DB, meeting.ID)
	if err != nil {
		log.Printf("❌ [FINALIZE] loading court summaries for %s: %v", meeting.ID, err)
		return nil
	}

	var participants []models.Participation
	err = s.DB.Where("meeting_id = ? AND status = ?", meeting.ID, models.StatusJoined).
		Preload("User").
		Find(&participants).Error
	if err != nil {
		log.Printf("❌ [FINALIZE] loading participants for %s: %v", meeting.ID, err)
		return nil
	}
	for _, p := range participants {
		s.Notify.MatchesGenerated(p.User, *meeting, courts)
	}
	return nil
}

// RunReminderPass sends at-most-once reminders to unconfirmed roster members
// of meetings starting within 24 hours. The reminder_sent latch is only set
// once dispatch has been accepted, so a failed handoff retries next tick.
// Guests without email are skipped and never latched.
func (s *FinalizationService) RunReminderPass() error {
	now := s.Now()
	cutoff := now.Add(24 * time.Hour)

	var meetings []models.Meeting
	err := s.DB.Where("start_time >= ? AND start_time <= ?", now, cutoff).
		Find(&meetings).Error
	if err != nil {
		log.Printf("❌ [REMIND] selecting meetings: %v", err)
		return err
	}

	for _, meeting := range meetings {
		var pending []models.Participation
		err := s.DB.Where(
			"meeting_id = ? AND status = ? AND confirmed_at IS NULL AND reminder_sent = ?",
			meeting.ID, models.StatusJoined, false,
		).Preload("User").Find(&pending).Error
		if err != nil {
			log.Printf("❌ [REMIND] meeting %s: %v", meeting.ID, err)
			continue
		}

		for _, p := range pending {
			if p.User.Email == nil || *p.User.Email == "" {
				continue
			}
			if s.Notify != nil {
				if err := s.Notify.Reminder(p.User, meeting); err != nil {
					log.Printf("❌ [REMIND] dispatch for user %s: %v", p.UserID, err)
					continue
				}
			}
			err := s.DB.Model(&models.Participation{}).
				Where("id = ?", p.ID).
				Update("reminder_sent", true).Error
			if err != nil {
				log.Printf("❌ [REMIND] latching reminder for %s: %v", p.ID, err)
			}
		}
	}
	return nil
}

// ---- HTTP cron triggers --------------------------------------------------

// RunFinalization is the external cron trigger for the finalization pass.
func (s *FinalizationService) RunFinalization(c *fiber.Ctx) error {
	if err := s.RunFinalizationPass(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "finalization pass failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// RunReminders is the external cron trigger for the reminder pass.
func (s *FinalizationService) RunReminders(c *fiber.Ctx) error {
	if err := s.RunReminderPass(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "reminder pass failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}
