package handlers

import (
	"github.com/laur2000/padel-tournment-web/middleware"
	"github.com/laur2000/padel-tournment-web/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMeetingRoutes(app *fiber.App, meetingService *services.MeetingService, rosterService *services.RosterService) {
	// 🔓 Public listing
	app.Get("/meetings", meetingService.GetAllMeetings)
	app.Get("/meetings/:id", meetingService.GetMeetingByID)

	// 🔐 Authenticated participant actions
	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Post("/meetings/:id/join", rosterService.Join)
	secured.Post("/meetings/:id/leave", rosterService.Leave)
	secured.Post("/meetings/:id/confirm", rosterService.Confirm)

	// Guest management (sponsor-owned)
	secured.Post("/meetings/:id/guests", rosterService.GuestAdd)
	secured.Delete("/meetings/:id/guests/:guest_user_id", rosterService.GuestRemove)
	secured.Post("/meetings/:id/guests/:guest_user_id/confirm", rosterService.GuestConfirm)

	// 🔒 Admin-only meeting lifecycle and roster curation
	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Post("/meetings", meetingService.CreateMeeting)
	admin.Put("/meetings/:id", meetingService.UpdateMeeting)
	admin.Delete("/meetings/:id", meetingService.DeleteMeeting)
	admin.Patch("/meetings/:id/guests-allowed", meetingService.UpdateGuestsAllowed)
	admin.Post("/meetings/:id/matches/regenerate", meetingService.RegenerateMatches)

	admin.Post("/meetings/:id/players", rosterService.AdminAdd)
	admin.Delete("/meetings/:id/players/:user_id", rosterService.AdminRemove)
	admin.Post("/meetings/:id/players/:user_id/confirm", rosterService.AdminConfirm)
}
