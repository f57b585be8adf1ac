// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler kicks off the in-process periodic triggers. An external cron
// hitting /cron/meetings and /cron/reminders is equally valid; overlapping
// invocations are safe because every pass is idempotent.
func (s *FinalizationService) StartScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: finalize meetings inside the 30-minute window
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			if err := s.RunFinalizationPass(); err != nil {
				log.Printf("[Scheduler] finalization pass error: %v", err)
			}
		}),
	)

	// Every 5 minutes: reminder sweep over the 24h window
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			if err := s.RunReminderPass(); err != nil {
				log.Printf("[Scheduler] reminder pass error: %v", err)
			}
		}),
	)
}
