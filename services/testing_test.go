package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory SQLite database. The connection pool
// is capped at one so concurrent transactions serialize, matching the
// serializable-isolation guarantee Postgres gives us in production.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Meeting{},
		&models.Participation{},
		&models.Match{},
		&models.Team{},
		&models.TeamMember{},
		&models.PushSubscription{},
	)
	if err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// testClock returns a fixed-now function.
func testClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

var baseTime = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

func createUser(t *testing.T, db *gorm.DB, name string, email string) models.User {
	t.Helper()
	user := models.User{ID: uuid.NewString(), Name: name}
	if email != "" {
		user.Email = &email
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}
	return user
}

func createMeeting(t *testing.T, db *gorm.DB, startTime time.Time, numCourts int) models.Meeting {
	t.Helper()
	meeting := models.Meeting{
		ID:        uuid.NewString(),
		Place:     "Club de Padel Central",
		Slug:      "club-de-padel-central",
		StartTime: startTime,
		NumCourts: numCourts,
	}
	if err := db.Create(&meeting).Error; err != nil {
		t.Fatalf("creating meeting: %v", err)
	}
	return meeting
}

func createParticipation(t *testing.T, db *gorm.DB, meetingID, userID string, status models.ParticipationStatus, at time.Time) models.Participation {
	t.Helper()
	p := models.Participation{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		UserID:    userID,
		Status:    status,
	}
	switch status {
	case models.StatusJoined:
		p.JoinedAt = &at
	case models.StatusWaitlisted:
		p.WaitlistedAt = &at
	case models.StatusLeft:
		p.LeftAt = &at
	case models.StatusRemovedByTruncation:
		p.RemovedAt = &at
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("creating participation: %v", err)
	}
	return p
}

func getParticipation(t *testing.T, db *gorm.DB, meetingID, userID string) models.Participation {
	t.Helper()
	var p models.Participation
	if err := db.Where("meeting_id = ? AND user_id = ?", meetingID, userID).First(&p).Error; err != nil {
		t.Fatalf("loading participation for %s: %v", userID, err)
	}
	return p
}

func countByStatus(t *testing.T, db *gorm.DB, meetingID string, status models.ParticipationStatus) int64 {
	t.Helper()
	var n int64
	err := db.Model(&models.Participation{}).
		Where("meeting_id = ? AND status = ?", meetingID, status).
		Count(&n).Error
	if err != nil {
		t.Fatalf("counting %s participations: %v", status, err)
	}
	return n
}

// fakeNotifier records deliveries instead of sending them.
type fakeNotifier struct {
	mu          sync.Mutex
	promotions  []string
	reminders   []string
	matchesSent []string
	reminderErr error
}

func (f *fakeNotifier) WaitlistPromotion(user models.User, meeting models.Meeting) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotions = append(f.promotions, user.ID)
}

func (f *fakeNotifier) Reminder(user models.User, meeting models.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reminderErr != nil {
		return f.reminderErr
	}
	f.reminders = append(f.reminders, user.ID)
	return nil
}

func (f *fakeNotifier) MatchesGenerated(user models.User, meeting models.Meeting, courts []CourtSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchesSent = append(f.matchesSent, user.ID)
}

// newTestRosterService builds a RosterService against the test database with a
// pinned clock. SQLite has no explicit serializable BeginTx option, so the
// default transaction options are used; the single-connection pool provides
// the equivalent serialization.
func newTestRosterService(db *gorm.DB, now time.Time, notify Notifier) *RosterService {
	s := NewRosterService(db, notify)
	s.Now = testClock(now)
	s.txOpts = nil
	return s
}
