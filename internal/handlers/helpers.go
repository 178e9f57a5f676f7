package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

func actorFrom(c *fiber.Ctx) services.Actor {
	actor := services.Actor{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
	if id, ok := middleware.GetCurrentUserID(c); ok {
		actor.UserID = &id
	}
	return actor
}

func paramUUID(c *fiber.Ctx, name, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+entity+" id")
	}
	return id, nil
}

func queryUUID(c *fiber.Ctx, keys ...string) (*uuid.UUID, error) {
	for _, key := range keys {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+key)
		}
		return &id, nil
	}
	return nil, nil
}

func optionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+field)
	}
	return &id, nil
}

func paginated(c *fiber.Ctx, data any, pg utils.Pagination, total int64) error {
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       data,
		"pagination": pg.Meta(total),
	})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func created(c *fiber.Ctx, data any, message string) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}
