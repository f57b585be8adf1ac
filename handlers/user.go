package handlers

import (
	"github.com/laur2000/padel-tournment-web/middleware"
	"github.com/laur2000/padel-tournment-web/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Put("/profile/picture", userService.UpdateProfilePicture)
	secured.Post("/web-push/subscribe", userService.SubscribePush)
	secured.Post("/web-push/unsubscribe", userService.UnsubscribePush)

	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Get("/users/search", userService.SearchUsers)
}
