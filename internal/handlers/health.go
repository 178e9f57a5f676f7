package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Health reports liveness with process uptime.
func Health(env string, started time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "OK",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"uptime":      time.Since(started).Seconds(),
			"environment": env,
		})
	}
}
