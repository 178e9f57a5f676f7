package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

// ActivityHandler serves the audit log.
type ActivityHandler struct {
	activities *services.ActivityService
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(activities *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List returns a page of activities, newest first.
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c, 50)
	activities, total, err := h.activities.List(c.UserContext(), services.ActivityFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, activities, pg, total)
}
