package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/example/legionbilling/internal/services"
)

// PlanHandler serves /api/plans.
type PlanHandler struct {
	plans *services.PlanService
}

// NewPlanHandler constructs a PlanHandler.
func NewPlanHandler(plans *services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

type planRequest struct {
	Name        *string          `json:"name"`
	Speed       *string          `json:"speed"`
	Price       *decimal.Decimal `json:"price"`
	DataLimit   *string          `json:"data_limit"`
	Description *string          `json:"description"`
	IsActive    *bool            `json:"is_active"`
}

func (r planRequest) input() services.PlanInput {
	return services.PlanInput{
		Name:        r.Name,
		Speed:       r.Speed,
		Price:       r.Price,
		DataLimit:   r.DataLimit,
		Description: r.Description,
		IsActive:    r.IsActive,
	}
}

// List returns plans; ?active=true hides inactive ones.
func (h *PlanHandler) List(c *fiber.Ctx) error {
	plans, err := h.plans.List(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return err
	}
	return ok(c, plans)
}

func (h *PlanHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "plan")
	if err != nil {
		return err
	}
	plan, err := h.plans.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, plan)
}

func (h *PlanHandler) Create(c *fiber.Ctx) error {
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	plan, err := h.plans.Create(c.UserContext(), actorFrom(c), req.input())
	if err != nil {
		return err
	}
	return created(c, plan, "Plan created successfully")
}

func (h *PlanHandler) Update(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "plan")
	if err != nil {
		return err
	}
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	plan, err := h.plans.Update(c.UserContext(), actorFrom(c), id, req.input())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Plan updated successfully",
		"data":    plan,
	})
}

func (h *PlanHandler) Delete(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "plan")
	if err != nil {
		return err
	}
	if err := h.plans.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Plan deleted successfully",
	})
}
