package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/laur2000/padel-tournment-web/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/wneessen/go-mail"
	"gorm.io/gorm"
)

// Notifier is what the roster and pipeline code sees: enqueue-only, decoupled
// from the transaction that changed state. Only Reminder reports a handoff
// failure, because the reminder latch must not be set when dispatch never got
// accepted.
type Notifier interface {
	WaitlistPromotion(user models.User, meeting models.Meeting)
	Reminder(user models.User, meeting models.Meeting) error
	MatchesGenerated(user models.User, meeting models.Meeting, courts []CourtSummary)
}

type NotificationKind string

const (
	NotificationPromotion   NotificationKind = "waitlist_promotion"
	NotificationReminder    NotificationKind = "reminder"
	NotificationMatchesDone NotificationKind = "matches_generated"
)

// Notification is one pending delivery (email + push for one user).
type Notification struct {
	Kind    NotificationKind
	User    models.User
	Meeting models.Meeting
	Courts  []CourtSummary
}

// NotificationService queues notifications and delivers them over SMTP and Web
// Push. Delivery is best effort: failures are logged and never propagated to
// the operation that queued them.
type NotificationService struct {
	DB    *gorm.DB
	queue chan Notification

	baseURL      string
	smtpFrom     string
	mailer       *mail.Client
	vapidPublic  string
	vapidPrivate string
	vapidSubject string
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	s := &NotificationService{
		DB:           db,
		queue:        make(chan Notification, 256),
		baseURL:      strings.TrimSuffix(os.Getenv("APP_BASE_URL"), "/"),
		smtpFrom:     os.Getenv("SMTP_FROM"),
		vapidPublic:  os.Getenv("VAPID_PUBLIC_KEY"),
		vapidPrivate: os.Getenv("VAPID_PRIVATE_KEY"),
		vapidSubject: os.Getenv("VAPID_SUBJECT"),
	}
	if s.vapidSubject == "" {
		s.vapidSubject = "mailto:" + s.smtpFrom
	}

	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("⚠️  SMTP_HOST not set — emails will be skipped")
		return s
	}
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(os.Getenv("SMTP_USER")),
		mail.WithPassword(os.Getenv("SMTP_PASS")),
	)
	if err != nil {
		log.Printf("❌ [NOTIFY] failed to build SMTP client: %v", err)
		return s
	}
	s.mailer = client
	return s
}

// Queue exposes the pending notifications to the dispatch worker.
func (s *NotificationService) Queue() <-chan Notification {
	return s.queue
}

func (s *NotificationService) enqueue(n Notification) error {
	select {
	case s.queue <- n:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropping %s for user %s", n.Kind, n.User.ID)
	}
}

func (s *NotificationService) WaitlistPromotion(user models.User, meeting models.Meeting) {
	if err := s.enqueue(Notification{Kind: NotificationPromotion, User: user, Meeting: meeting}); err != nil {
		log.Printf("❌ [NOTIFY] %v", err)
	}
}

func (s *NotificationService) Reminder(user models.User, meeting models.Meeting) error {
	return s.enqueue(Notification{Kind: NotificationReminder, User: user, Meeting: meeting})
}

func (s *NotificationService) MatchesGenerated(user models.User, meeting models.Meeting, courts []CourtSummary) {
	if err := s.enqueue(Notification{Kind: NotificationMatchesDone, User: user, Meeting: meeting, Courts: courts}); err != nil {
		log.Printf("❌ [NOTIFY] %v", err)
	}
}

// Deliver sends one notification: email when the user has one, then push to
// every subscription of the user. Called by the dispatch worker.
func (s *NotificationService) Deliver(n Notification) {
	meetingLink := fmt.Sprintf("%s/meetings/%s", s.baseURL, n.Meeting.ID)
	dateStr := n.Meeting.StartTime.Format("Monday 02 Jan 2006, 15:04")

	var subject, html string
	var push pushPayload

	switch n.Kind {
	case NotificationPromotion:
		subject = "¡Has entrado al partido!"
		html = fmt.Sprintf(`<h1>¡Buenas noticias!</h1>
<p>Una plaza se ha liberado en el partido en <strong>%s</strong> el <strong>%s</strong>.</p>
<p>Has sido movido de la lista de espera a la lista de jugadores principales.</p>
<p>Por favor, entra al siguiente enlace para confirmar tu asistencia:</p>
<p><a href="%s">Ver Partido y Confirmar</a></p>
<p>¡Nos vemos en la pista!</p>`, n.Meeting.Place, dateStr, meetingLink)
		push = pushPayload{
			Title: "¡Has entrado al partido!",
			Body:  fmt.Sprintf("Una plaza se ha liberado en %s. Confirma tu asistencia.", n.Meeting.Place),
			URL:   "/meetings/" + n.Meeting.ID,
		}

	case NotificationReminder:
		subject = "Recordatorio: Confirma tu asistencia"
		html = fmt.Sprintf(`<h1>¡Hola!</h1>
<p>Tienes un partido pendiente de confirmación en <strong>%s</strong> el <strong>%s</strong>.</p>
<p>Recuerda que debes confirmar tu asistencia para asegurar tu plaza.</p>
<p><a href="%s">Confirmar Asistencia</a></p>
<p>¡Nos vemos en la pista!</p>`, n.Meeting.Place, dateStr, meetingLink)
		push = pushPayload{
			Title: "Recordatorio de Partido",
			Body:  fmt.Sprintf("Recuerda confirmar tu asistencia para el partido en %s", n.Meeting.Place),
			URL:   "/meetings/" + n.Meeting.ID,
		}

	case NotificationMatchesDone:
		subject = "¡Partidos Generados!"
		var b strings.Builder
		fmt.Fprintf(&b, `<h1>¡Partidos Generados!</h1>
<p>Los partidos para <strong>%s</strong> el <strong>%s</strong> han sido organizados:</p>`, n.Meeting.Place, dateStr)
		for _, court := range n.Courts {
			fmt.Fprintf(&b, "<p><strong>Pista %d</strong>: %s vs %s</p>",
				court.CourtNumber,
				strings.Join(court.TeamA, " y "),
				strings.Join(court.TeamB, " y "))
		}
		fmt.Fprintf(&b, `<p><a href="%s">Ver Partido</a></p>`, meetingLink)
		html = b.String()
		push = pushPayload{
			Title: "¡Partidos Generados!",
			Body:  fmt.Sprintf("Los partidos para %s han sido organizados. Mira con quién juegas.", n.Meeting.Place),
			URL:   "/meetings/" + n.Meeting.ID,
		}

	default:
		log.Printf("⚠️  [NOTIFY] unknown notification kind %q", n.Kind)
		return
	}

	if n.User.Email != nil && *n.User.Email != "" {
		if err := s.sendEmail(*n.User.Email, subject, html); err != nil {
			log.Printf("❌ [NOTIFY] email to %s failed: %v", *n.User.Email, err)
		}
	}
	s.sendPush(n.User.ID, push)
}

func (s *NotificationService) sendEmail(to, subject, html string) error {
	if s.mailer == nil {
		log.Printf("⚠️  [NOTIFY] SMTP not configured, skipping email %q to %s", subject, to)
		return nil
	}
	msg := mail.NewMsg()
	if err := msg.From(s.smtpFrom); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	return s.mailer.DialAndSend(msg)
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// sendPush fans the payload out to every push subscription the user has.
// Subscriptions rejected with 404/410 are pruned.
func (s *NotificationService) sendPush(userID string, payload pushPayload) {
	if s.vapidPublic == "" || s.vapidPrivate == "" {
		return
	}

	var subs []models.PushSubscription
	if err := s.DB.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		log.Printf("❌ [NOTIFY] loading push subscriptions for %s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, _ := json.Marshal(payload)
	for _, sub := range subs {
		resp, err := webpush.SendNotification(body, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      s.vapidSubject,
			VAPIDPublicKey:  s.vapidPublic,
			VAPIDPrivateKey: s.vapidPrivate,
			TTL:             int((12 * time.Hour).Seconds()),
		})
		if err != nil {
			log.Printf("❌ [NOTIFY] push to %s failed: %v", userID, err)
			continue
		}
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			// Endpoint is gone; drop the stale subscription.
			if err := s.DB.Delete(&models.PushSubscription{}, "id = ?", sub.ID).Error; err != nil {
				log.Printf("❌ [NOTIFY] pruning stale subscription %s: %v", sub.ID, err)
			}
		}
		resp.Body.Close()
	}
}
