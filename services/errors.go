package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors returned by the roster/meeting services. Handlers translate
// them to HTTP status codes; message text shown to users is a presentation
// concern, not part of this contract.
var (
	// Authorization
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotAdmin      = errors.New("admin role required")
	ErrNotGuestOwner = errors.New("you can only manage guests you added")

	// Not found
	ErrMeetingNotFound       = errors.New("meeting not found")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrUserNotFound          = errors.New("user not found")

	// Invalid state
	ErrMeetingStarted       = errors.New("meeting has already started")
	ErrMatchmakingGenerated = errors.New("matchmaking has already been generated")
	ErrMeetingLocked        = errors.New("meeting is locked: less than 15m to start and all players confirmed")
	ErrMeetingEditLocked    = errors.New("meeting cannot be edited after matchmaking")
	ErrConfirmWindowClosed  = errors.New("confirmation only available within 24h of start")
	ErrGuestWindowClosed    = errors.New("guests can only be added within 72h of start")
	ErrGuestsNotAllowed     = errors.New("this meeting does not allow guests")

	// Concurrency: the transaction lost a serialization conflict. The caller
	// should retry the whole operation.
	ErrConflict = errors.New("concurrent update conflict, retry")
)

// isSerializationFailure reports whether err is a Postgres serialization
// failure (SQLSTATE 40001) or deadlock (40P01). Under serializable isolation
// these are expected under contention and map to ErrConflict.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// wrapTxError normalizes storage-level errors coming out of a transaction.
func wrapTxError(err error) error {
	if err == nil {
		return nil
	}
	if isSerializationFailure(err) {
		return ErrConflict
	}
	return err
}

// respondError maps a domain error to the HTTP boundary. Unknown errors are
// logged by the caller's stack as 500s without leaking internals.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotGuestOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrMeetingNotFound),
		errors.Is(err, ErrParticipationNotFound),
		errors.Is(err, ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrMeetingStarted),
		errors.Is(err, ErrMatchmakingGenerated),
		errors.Is(err, ErrMeetingLocked),
		errors.Is(err, ErrMeetingEditLocked),
		errors.Is(err, ErrConfirmWindowClosed),
		errors.Is(err, ErrGuestWindowClosed),
		errors.Is(err, ErrGuestsNotAllowed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "retry": true})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
