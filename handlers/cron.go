package handlers

import (
	"github.com/laur2000/padel-tournment-web/middleware"
	"github.com/laur2000/padel-tournment-web/services"

	"github.com/gofiber/fiber/v2"
)

// SetupCronRoutes exposes the pipeline passes to an external cron trigger.
// Both passes are idempotent, so a duplicate or overlapping trigger is safe.
func SetupCronRoutes(app *fiber.App, finalizationService *services.FinalizationService) {
	cron := app.Group("/cron", middleware.CronAuthMiddleware())
	cron.Get("/meetings", finalizationService.RunFinalization)
	cron.Get("/reminders", finalizationService.RunReminders)
}
