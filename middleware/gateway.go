// middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CronAuthMiddleware validates the shared secret presented by the external
// cron trigger on /cron routes.
func CronAuthMiddleware() fiber.Handler {
	expectedSecret := os.Getenv("CRON_SECRET")
	if expectedSecret == "" {
		log.Fatal("❌ CRON_SECRET is not set — cron endpoints cannot be authenticated")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if authHeader == "" || token != expectedSecret {
			log.Printf("🚫 [CRON_AUTH] invalid or missing secret for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid cron secret",
			})
		}
		return c.Next()
	}
}
