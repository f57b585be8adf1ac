package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/laur2000/padel-tournment-web/models"
)

func TestJoinMeeting(t *testing.T) {
	t.Run("fills the roster then waitlists", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

		for i := 0; i < 4; i++ {
			user := createUser(t, db, fmt.Sprintf("Player %d", i), "")
			status, err := svc.JoinMeeting(meeting.ID, user.ID)
			if err != nil {
				t.Fatalf("join %d: %v", i, err)
			}
			if status != models.StatusJoined {
				t.Fatalf("join %d: got %s, want JOINED", i, status)
			}
		}

		overflow := createUser(t, db, "Overflow", "")
		status, err := svc.JoinMeeting(meeting.ID, overflow.ID)
		if err != nil {
			t.Fatalf("overflow join: %v", err)
		}
		if status != models.StatusWaitlisted {
			t.Fatalf("overflow join: got %s, want WAITLISTED", status)
		}

		if n := countByStatus(t, db, meeting.ID, models.StatusJoined); n != 4 {
			t.Fatalf("joined count = %d, want 4", n)
		}
		if n := countByStatus(t, db, meeting.ID, models.StatusWaitlisted); n != 1 {
			t.Fatalf("waitlisted count = %d, want 1", n)
		}
	})

	t.Run("repeat join is a no-op", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		user := createUser(t, db, "Ana", "")

		if _, err := svc.JoinMeeting(meeting.ID, user.ID); err != nil {
			t.Fatalf("first join: %v", err)
		}
		before := getParticipation(t, db, meeting.ID, user.ID)

		status, err := svc.JoinMeeting(meeting.ID, user.ID)
		if err != nil {
			t.Fatalf("second join: %v", err)
		}
		if status != models.StatusJoined {
			t.Fatalf("second join: got %s, want JOINED", status)
		}

		after := getParticipation(t, db, meeting.ID, user.ID)
		if !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatal("repeat join rewrote the participation row")
		}
		if after.JoinedAt == nil || !after.JoinedAt.Equal(*before.JoinedAt) {
			t.Fatal("repeat join changed joined_at")
		}
	})

	t.Run("rejoin after leaving goes through capacity again", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

		ana := createUser(t, db, "Ana", "")
		if _, err := svc.JoinMeeting(meeting.ID, ana.ID); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := svc.LeaveMeeting(meeting.ID, ana.ID); err != nil {
			t.Fatalf("leave: %v", err)
		}

		// Fill the roster while Ana is out.
		for i := 0; i < 4; i++ {
			u := createUser(t, db, fmt.Sprintf("Filler %d", i), "")
			if _, err := svc.JoinMeeting(meeting.ID, u.ID); err != nil {
				t.Fatalf("filler join: %v", err)
			}
		}

		status, err := svc.JoinMeeting(meeting.ID, ana.ID)
		if err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		if status != models.StatusWaitlisted {
			t.Fatalf("rejoin: got %s, want WAITLISTED", status)
		}

		p := getParticipation(t, db, meeting.ID, ana.ID)
		if p.LeftAt != nil || p.ConfirmedAt != nil || p.JoinedAt != nil {
			t.Fatal("rejoin did not reset stale timestamps")
		}
		if p.WaitlistedAt == nil {
			t.Fatal("rejoin did not stamp waitlisted_at")
		}
	})

	t.Run("refused once the meeting started", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(-1*time.Hour), 1)
		user := createUser(t, db, "Late", "")

		_, err := svc.JoinMeeting(meeting.ID, user.ID)
		if !errors.Is(err, ErrMeetingStarted) {
			t.Fatalf("got %v, want ErrMeetingStarted", err)
		}
	})

	t.Run("unknown meeting", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		user := createUser(t, db, "Lost", "")

		_, err := svc.JoinMeeting("no-such-meeting", user.ID)
		if !errors.Is(err, ErrMeetingNotFound) {
			t.Fatalf("got %v, want ErrMeetingNotFound", err)
		}
	})
}

func TestRosterLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := newTestRosterService(db, baseTime, &fakeNotifier{})
	meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

	names := []string{"A", "B", "C", "D", "E"}
	users := make(map[string]models.User, len(names))
	for _, name := range names {
		users[name] = createUser(t, db, name, "")
	}

	for _, name := range []string{"A", "B", "C", "D"} {
		status, err := svc.JoinMeeting(meeting.ID, users[name].ID)
		if err != nil || status != models.StatusJoined {
			t.Fatalf("%s join: status=%s err=%v", name, status, err)
		}
	}
	status, err := svc.JoinMeeting(meeting.ID, users["E"].ID)
	if err != nil || status != models.StatusWaitlisted {
		t.Fatalf("E join: status=%s err=%v", status, err)
	}

	if err := svc.LeaveMeeting(meeting.ID, users["A"].ID); err != nil {
		t.Fatalf("A leave: %v", err)
	}

	want := map[string]models.ParticipationStatus{
		"A": models.StatusLeft,
		"B": models.StatusJoined,
		"C": models.StatusJoined,
		"D": models.StatusJoined,
		"E": models.StatusJoined,
	}
	for name, wantStatus := range want {
		p := getParticipation(t, db, meeting.ID, users[name].ID)
		if p.Status != wantStatus {
			t.Fatalf("%s status = %s, want %s", name, p.Status, wantStatus)
		}
	}
	e := getParticipation(t, db, meeting.ID, users["E"].ID)
	if e.JoinedAt == nil || e.WaitlistedAt != nil {
		t.Fatal("promotion did not swap E's waitlisted_at for joined_at")
	}
	if n := countByStatus(t, db, meeting.ID, models.StatusWaitlisted); n != 0 {
		t.Fatalf("waitlist = %d, want empty", n)
	}
}

func TestConcurrentJoins(t *testing.T) {
	db := newTestDB(t)
	svc := newTestRosterService(db, baseTime, &fakeNotifier{})
	meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

	const players = 9
	users := make([]models.User, players)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("Racer %d", i), "")
	}

	var wg sync.WaitGroup
	errs := make([]error, players)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.JoinMeeting(meeting.ID, users[i].ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent join %d: %v", i, err)
		}
	}
	if n := countByStatus(t, db, meeting.ID, models.StatusJoined); n != 4 {
		t.Fatalf("joined count = %d, want exactly 4", n)
	}
	if n := countByStatus(t, db, meeting.ID, models.StatusWaitlisted); n != 5 {
		t.Fatalf("waitlisted count = %d, want 5", n)
	}
}

func TestLeaveMeeting(t *testing.T) {
	t.Run("promotes the earliest waitlisted player", func(t *testing.T) {
		db := newTestDB(t)
		notify := &fakeNotifier{}
		svc := newTestRosterService(db, baseTime, notify)
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

		roster := make([]models.User, 4)
		for i := range roster {
			roster[i] = createUser(t, db, fmt.Sprintf("Roster %d", i), "")
			if _, err := svc.JoinMeeting(meeting.ID, roster[i].ID); err != nil {
				t.Fatalf("roster join: %v", err)
			}
		}
		// Two waitlisted players with distinct waitlisted_at.
		eva := createUser(t, db, "Eva", "")
		createParticipation(t, db, meeting.ID, eva.ID, models.StatusWaitlisted, baseTime.Add(1*time.Minute))
		fran := createUser(t, db, "Fran", "")
		createParticipation(t, db, meeting.ID, fran.ID, models.StatusWaitlisted, baseTime.Add(2*time.Minute))

		if err := svc.LeaveMeeting(meeting.ID, roster[0].ID); err != nil {
			t.Fatalf("leave: %v", err)
		}

		if p := getParticipation(t, db, meeting.ID, eva.ID); p.Status != models.StatusJoined {
			t.Fatalf("Eva status = %s, want JOINED", p.Status)
		}
		if p := getParticipation(t, db, meeting.ID, fran.ID); p.Status != models.StatusWaitlisted {
			t.Fatalf("Fran status = %s, want WAITLISTED", p.Status)
		}
		if len(notify.promotions) != 1 || notify.promotions[0] != eva.ID {
			t.Fatalf("promotion notifications = %v, want [Eva]", notify.promotions)
		}

		// Second leave promotes Fran.
		if err := svc.LeaveMeeting(meeting.ID, roster[1].ID); err != nil {
			t.Fatalf("second leave: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, fran.ID); p.Status != models.StatusJoined {
			t.Fatalf("Fran status = %s, want JOINED after second leave", p.Status)
		}
	})

	t.Run("waitlisted leaver triggers no promotion", func(t *testing.T) {
		db := newTestDB(t)
		notify := &fakeNotifier{}
		svc := newTestRosterService(db, baseTime, notify)
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)

		for i := 0; i < 4; i++ {
			u := createUser(t, db, fmt.Sprintf("Roster %d", i), "")
			if _, err := svc.JoinMeeting(meeting.ID, u.ID); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		w1 := createUser(t, db, "Wait 1", "")
		createParticipation(t, db, meeting.ID, w1.ID, models.StatusWaitlisted, baseTime.Add(1*time.Minute))
		w2 := createUser(t, db, "Wait 2", "")
		createParticipation(t, db, meeting.ID, w2.ID, models.StatusWaitlisted, baseTime.Add(2*time.Minute))

		if err := svc.LeaveMeeting(meeting.ID, w1.ID); err != nil {
			t.Fatalf("waitlisted leave: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, w2.ID); p.Status != models.StatusWaitlisted {
			t.Fatalf("Wait 2 status = %s, want still WAITLISTED", p.Status)
		}
		if len(notify.promotions) != 0 {
			t.Fatalf("promotions = %v, want none", notify.promotions)
		}
		if n := countByStatus(t, db, meeting.ID, models.StatusJoined); n != 4 {
			t.Fatalf("joined count = %d, want 4", n)
		}
	})

	t.Run("locked when all joined confirmed inside 15 minutes", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(10*time.Minute), 1)

		users := make([]models.User, 4)
		for i := range users {
			users[i] = createUser(t, db, fmt.Sprintf("Locked %d", i), "")
			p := createParticipation(t, db, meeting.ID, users[i].ID, models.StatusJoined, baseTime.Add(-time.Hour))
			confirmed := baseTime.Add(-30 * time.Minute)
			if err := db.Model(&p).Update("confirmed_at", confirmed).Error; err != nil {
				t.Fatalf("confirming: %v", err)
			}
		}

		err := svc.LeaveMeeting(meeting.ID, users[0].ID)
		if !errors.Is(err, ErrMeetingLocked) {
			t.Fatalf("got %v, want ErrMeetingLocked", err)
		}
	})

	t.Run("not locked while someone is unconfirmed", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(10*time.Minute), 1)

		users := make([]models.User, 4)
		for i := range users {
			users[i] = createUser(t, db, fmt.Sprintf("Open %d", i), "")
			p := createParticipation(t, db, meeting.ID, users[i].ID, models.StatusJoined, baseTime.Add(-time.Hour))
			if i > 0 {
				confirmed := baseTime.Add(-30 * time.Minute)
				if err := db.Model(&p).Update("confirmed_at", confirmed).Error; err != nil {
					t.Fatalf("confirming: %v", err)
				}
			}
		}

		if err := svc.LeaveMeeting(meeting.ID, users[1].ID); err != nil {
			t.Fatalf("leave with unconfirmed roster: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, users[1].ID); p.Status != models.StatusLeft {
			t.Fatalf("status = %s, want LEFT", p.Status)
		}
	})

	t.Run("refused after matchmaking exists", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		generated := baseTime.Add(-time.Minute)
		if err := db.Model(&meeting).Update("matchmaking_generated_at", generated).Error; err != nil {
			t.Fatalf("stamping matchmaking: %v", err)
		}
		user := createUser(t, db, "Stuck", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusJoined, baseTime.Add(-time.Hour))

		err := svc.LeaveMeeting(meeting.ID, user.ID)
		if !errors.Is(err, ErrMatchmakingGenerated) {
			t.Fatalf("got %v, want ErrMatchmakingGenerated", err)
		}
	})

	t.Run("refused after start", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(-time.Minute), 1)
		user := createUser(t, db, "TooLate", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusJoined, baseTime.Add(-time.Hour))

		err := svc.LeaveMeeting(meeting.ID, user.ID)
		if !errors.Is(err, ErrMeetingStarted) {
			t.Fatalf("got %v, want ErrMeetingStarted", err)
		}
	})

	t.Run("leaving without a participation is a no-op", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		user := createUser(t, db, "Ghost", "")

		if err := svc.LeaveMeeting(meeting.ID, user.ID); err != nil {
			t.Fatalf("got %v, want nil", err)
		}
	})
}

func TestAdminRemovePlayer(t *testing.T) {
	db := newTestDB(t)
	notify := &fakeNotifier{}
	svc := newTestRosterService(db, baseTime, notify)

	// Meeting already inside the 15-minute lock with everyone confirmed; the
	// admin path ignores that.
	meeting := createMeeting(t, db, baseTime.Add(5*time.Minute), 1)
	users := make([]models.User, 4)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("Confirmed %d", i), "")
		p := createParticipation(t, db, meeting.ID, users[i].ID, models.StatusJoined, baseTime.Add(-time.Hour))
		confirmed := baseTime.Add(-30 * time.Minute)
		if err := db.Model(&p).Update("confirmed_at", confirmed).Error; err != nil {
			t.Fatalf("confirming: %v", err)
		}
	}
	waiting := createUser(t, db, "Waiting", "")
	createParticipation(t, db, meeting.ID, waiting.ID, models.StatusWaitlisted, baseTime.Add(-time.Minute))

	if err := svc.AdminRemovePlayer(meeting.ID, users[0].ID); err != nil {
		t.Fatalf("admin remove: %v", err)
	}
	if p := getParticipation(t, db, meeting.ID, users[0].ID); p.Status != models.StatusLeft {
		t.Fatalf("removed player status = %s, want LEFT", p.Status)
	}
	if p := getParticipation(t, db, meeting.ID, waiting.ID); p.Status != models.StatusJoined {
		t.Fatalf("waitlisted player status = %s, want JOINED", p.Status)
	}
	if len(notify.promotions) != 1 || notify.promotions[0] != waiting.ID {
		t.Fatalf("promotion notifications = %v, want [waiting]", notify.promotions)
	}
}

func TestConfirmAttendance(t *testing.T) {
	t.Run("stamps inside the 24h window", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(12*time.Hour), 1)
		user := createUser(t, db, "Ana", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusJoined, baseTime.Add(-time.Hour))

		if err := svc.ConfirmAttendance(meeting.ID, user.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		p := getParticipation(t, db, meeting.ID, user.ID)
		if p.ConfirmedAt == nil || !p.ConfirmedAt.Equal(baseTime) {
			t.Fatalf("confirmed_at = %v, want %v", p.ConfirmedAt, baseTime)
		}
	})

	t.Run("refused before the window opens", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(25*time.Hour), 1)
		user := createUser(t, db, "Early", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusJoined, baseTime.Add(-time.Hour))

		err := svc.ConfirmAttendance(meeting.ID, user.ID)
		if !errors.Is(err, ErrConfirmWindowClosed) {
			t.Fatalf("got %v, want ErrConfirmWindowClosed", err)
		}
	})

	t.Run("refused after start", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(-time.Minute), 1)
		user := createUser(t, db, "Late", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusJoined, baseTime.Add(-time.Hour))

		err := svc.ConfirmAttendance(meeting.ID, user.ID)
		if !errors.Is(err, ErrMeetingStarted) {
			t.Fatalf("got %v, want ErrMeetingStarted", err)
		}
	})

	t.Run("waitlisted confirmation is a silent no-op", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(12*time.Hour), 1)
		user := createUser(t, db, "Waiting", "")
		createParticipation(t, db, meeting.ID, user.ID, models.StatusWaitlisted, baseTime.Add(-time.Hour))

		if err := svc.ConfirmAttendance(meeting.ID, user.ID); err != nil {
			t.Fatalf("confirm while waitlisted: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, user.ID); p.ConfirmedAt != nil {
			t.Fatal("waitlisted participation got a confirmed_at stamp")
		}
	})
}

func TestAdminAddPlayer(t *testing.T) {
	t.Run("adds over capacity, pre-confirmed", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		admin := createUser(t, db, "Admin", "admin@club.es")

		for i := 0; i < 4; i++ {
			u := createUser(t, db, fmt.Sprintf("Full %d", i), "")
			createParticipation(t, db, meeting.ID, u.ID, models.StatusJoined, baseTime.Add(-time.Hour))
		}

		extra := createUser(t, db, "Extra", "")
		targetID, err := svc.AdminAddPlayer(meeting.ID, &extra.ID, "", admin.ID)
		if err != nil {
			t.Fatalf("admin add: %v", err)
		}
		if targetID != extra.ID {
			t.Fatalf("targetID = %s, want %s", targetID, extra.ID)
		}

		p := getParticipation(t, db, meeting.ID, extra.ID)
		if p.Status != models.StatusJoined {
			t.Fatalf("status = %s, want JOINED beyond capacity", p.Status)
		}
		if p.ConfirmedAt == nil {
			t.Fatal("admin-added player not pre-confirmed")
		}
		if n := countByStatus(t, db, meeting.ID, models.StatusJoined); n != 5 {
			t.Fatalf("joined count = %d, want 5", n)
		}
	})

	t.Run("creates a guest when no user id given", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		admin := createUser(t, db, "Admin", "admin@club.es")

		targetID, err := svc.AdminAddPlayer(meeting.ID, nil, "Invitado", admin.ID)
		if err != nil {
			t.Fatalf("admin add guest: %v", err)
		}

		var guest models.User
		if err := db.First(&guest, "id = ?", targetID).Error; err != nil {
			t.Fatalf("loading guest: %v", err)
		}
		if !guest.IsGuest || guest.Name != "Invitado" {
			t.Fatalf("guest = %+v, want IsGuest with name Invitado", guest)
		}

		p := getParticipation(t, db, meeting.ID, targetID)
		if p.AddedByUserID == nil || *p.AddedByUserID != admin.ID {
			t.Fatal("guest participation not tagged with the admin")
		}
	})

	t.Run("unknown user id", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		bogus := "no-such-user"

		_, err := svc.AdminAddPlayer(meeting.ID, &bogus, "", "admin")
		if !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("got %v, want ErrUserNotFound", err)
		}
	})
}

func TestGuestLifecycle(t *testing.T) {
	t.Run("sponsor adds a guest inside the window", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		if err := db.Model(&meeting).Update("allow_guests", true).Error; err != nil {
			t.Fatalf("enabling guests: %v", err)
		}
		sponsor := createUser(t, db, "Sponsor", "sponsor@club.es")

		status, guestID, err := svc.AddGuest(meeting.ID, "Invitado de Sponsor", sponsor.ID)
		if err != nil {
			t.Fatalf("add guest: %v", err)
		}
		if status != models.StatusJoined {
			t.Fatalf("guest status = %s, want JOINED", status)
		}

		p := getParticipation(t, db, meeting.ID, guestID)
		if p.AddedByUserID == nil || *p.AddedByUserID != sponsor.ID {
			t.Fatal("guest participation not tagged with the sponsor")
		}
		var guest models.User
		if err := db.First(&guest, "id = ?", guestID).Error; err != nil {
			t.Fatalf("loading guest: %v", err)
		}
		if !guest.IsGuest {
			t.Fatal("created user is not flagged as guest")
		}
	})

	t.Run("guest waitlists when the roster is full", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		if err := db.Model(&meeting).Update("allow_guests", true).Error; err != nil {
			t.Fatalf("enabling guests: %v", err)
		}
		for i := 0; i < 4; i++ {
			u := createUser(t, db, fmt.Sprintf("Full %d", i), "")
			createParticipation(t, db, meeting.ID, u.ID, models.StatusJoined, baseTime.Add(-time.Hour))
		}
		sponsor := createUser(t, db, "Sponsor", "")

		status, _, err := svc.AddGuest(meeting.ID, "Invitado", sponsor.ID)
		if err != nil {
			t.Fatalf("add guest: %v", err)
		}
		if status != models.StatusWaitlisted {
			t.Fatalf("guest status = %s, want WAITLISTED", status)
		}
	})

	t.Run("refused when guests are disabled", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(48*time.Hour), 1)
		sponsor := createUser(t, db, "Sponsor", "")

		_, _, err := svc.AddGuest(meeting.ID, "Invitado", sponsor.ID)
		if !errors.Is(err, ErrGuestsNotAllowed) {
			t.Fatalf("got %v, want ErrGuestsNotAllowed", err)
		}
	})

	t.Run("refused before the 72h window opens", func(t *testing.T) {
		db := newTestDB(t)
		svc := newTestRosterService(db, baseTime, &fakeNotifier{})
		meeting := createMeeting(t, db, baseTime.Add(73*time.Hour), 1)
		if err := db.Model(&meeting).Update("allow_guests", true).Error; err != nil {
			t.Fatalf("enabling guests: %v", err)
		}
		sponsor := createUser(t, db, "Sponsor", "")

		_, _, err := svc.AddGuest(meeting.ID, "Invitado", sponsor.ID)
		if !errors.Is(err, ErrGuestWindowClosed) {
			t.Fatalf("got %v, want ErrGuestWindowClosed", err)
		}
	})

	t.Run("only the sponsor may remove or confirm", func(t *testing.T) {
		db := newTestDB(t)
		notify := &fakeNotifier{}
		svc := newTestRosterService(db, baseTime, notify)
		meeting := createMeeting(t, db, baseTime.Add(12*time.Hour), 1)
		if err := db.Model(&meeting).Update("allow_guests", true).Error; err != nil {
			t.Fatalf("enabling guests: %v", err)
		}
		sponsor := createUser(t, db, "Sponsor", "")
		stranger := createUser(t, db, "Stranger", "")

		_, guestID, err := svc.AddGuest(meeting.ID, "Invitado", sponsor.ID)
		if err != nil {
			t.Fatalf("add guest: %v", err)
		}

		if err := svc.ConfirmGuest(meeting.ID, guestID, stranger.ID); !errors.Is(err, ErrNotGuestOwner) {
			t.Fatalf("stranger confirm: got %v, want ErrNotGuestOwner", err)
		}
		if err := svc.RemoveGuest(meeting.ID, guestID, stranger.ID); !errors.Is(err, ErrNotGuestOwner) {
			t.Fatalf("stranger remove: got %v, want ErrNotGuestOwner", err)
		}

		if err := svc.ConfirmGuest(meeting.ID, guestID, sponsor.ID); err != nil {
			t.Fatalf("sponsor confirm: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, guestID); p.ConfirmedAt == nil {
			t.Fatal("guest not confirmed by sponsor")
		}

		if err := svc.RemoveGuest(meeting.ID, guestID, sponsor.ID); err != nil {
			t.Fatalf("sponsor remove: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, guestID); p.Status != models.StatusLeft {
			t.Fatalf("guest status = %s, want LEFT", p.Status)
		}
	})

	t.Run("removing a guest promotes from the waitlist", func(t *testing.T) {
		db := newTestDB(t)
		notify := &fakeNotifier{}
		svc := newTestRosterService(db, baseTime, notify)
		meeting := createMeeting(t, db, baseTime.Add(12*time.Hour), 1)
		if err := db.Model(&meeting).Update("allow_guests", true).Error; err != nil {
			t.Fatalf("enabling guests: %v", err)
		}
		sponsor := createUser(t, db, "Sponsor", "")

		_, guestID, err := svc.AddGuest(meeting.ID, "Invitado", sponsor.ID)
		if err != nil {
			t.Fatalf("add guest: %v", err)
		}
		for i := 0; i < 3; i++ {
			u := createUser(t, db, fmt.Sprintf("Roster %d", i), "")
			createParticipation(t, db, meeting.ID, u.ID, models.StatusJoined, baseTime.Add(-time.Hour))
		}
		waiting := createUser(t, db, "Waiting", "")
		createParticipation(t, db, meeting.ID, waiting.ID, models.StatusWaitlisted, baseTime.Add(-time.Minute))

		if err := svc.RemoveGuest(meeting.ID, guestID, sponsor.ID); err != nil {
			t.Fatalf("remove guest: %v", err)
		}
		if p := getParticipation(t, db, meeting.ID, waiting.ID); p.Status != models.StatusJoined {
			t.Fatalf("waiting status = %s, want JOINED", p.Status)
		}
		if len(notify.promotions) != 1 || notify.promotions[0] != waiting.ID {
			t.Fatalf("promotions = %v, want [waiting]", notify.promotions)
		}
	})
}
