package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

// CustomerHandler serves /api/customers.
type CustomerHandler struct {
	customers *services.CustomerService
	payments  *services.PaymentService
}

// NewCustomerHandler constructs a CustomerHandler.
func NewCustomerHandler(customers *services.CustomerService, payments *services.PaymentService) *CustomerHandler {
	return &CustomerHandler{customers: customers, payments: payments}
}

type customerRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	PlanID  *string `json:"plan_id"`
	Plan    *string `json:"plan"`
	Address *string `json:"address"`
	Status  *string `json:"status"`
}

func (r customerRequest) planID() (*string, string) {
	if r.PlanID != nil {
		return r.PlanID, "plan_id"
	}
	return r.Plan, "plan"
}

// List returns a page of customers.
func (h *CustomerHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c, 50)

	status := c.Query("status")
	if status != "" && !models.IsCustomerStatus(status) && status != models.CustomerStatusDeleted {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
	}
	planID, err := queryUUID(c, "plan_id", "plan")
	if err != nil {
		return err
	}

	customers, total, err := h.customers.List(c.UserContext(), services.CustomerFilter{
		Status: status,
		PlanID: planID,
		Search: c.Query("search"),
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, customers, pg, total)
}

// Get returns one customer.
func (h *CustomerHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "customer")
	if err != nil {
		return err
	}
	customer, err := h.customers.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, customer)
}

// Create adds a customer.
func (h *CustomerHandler) Create(c *fiber.Ctx) error {
	var req customerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	rawPlan, field := req.planID()
	planID, err := optionalUUID(rawPlan, field)
	if err != nil {
		return err
	}

	customer, err := h.customers.Create(c.UserContext(), actorFrom(c), services.CustomerInput{
		Name:    deref(req.Name),
		Email:   deref(req.Email),
		Phone:   deref(req.Phone),
		PlanID:  planID,
		Address: deref(req.Address),
		Status:  deref(req.Status),
	})
	if err != nil {
		return err
	}
	return created(c, customer, "Customer created successfully")
}

// Update patches a customer.
func (h *CustomerHandler) Update(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "customer")
	if err != nil {
		return err
	}

	var req customerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	rawPlan, field := req.planID()
	planID, err := optionalUUID(rawPlan, field)
	if err != nil {
		return err
	}

	customer, err := h.customers.Update(c.UserContext(), actorFrom(c), id, services.CustomerUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		PlanID:  planID,
		Address: req.Address,
		Status:  req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Customer updated successfully",
		"data":    customer,
	})
}

// Delete soft-deletes a customer.
func (h *CustomerHandler) Delete(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "customer")
	if err != nil {
		return err
	}
	if err := h.customers.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Customer deleted successfully",
	})
}

// Stats returns customer counts.
func (h *CustomerHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.customers.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, stats)
}

// Payments returns a customer's payment history.
func (h *CustomerHandler) Payments(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "customer")
	if err != nil {
		return err
	}
	customer, err := h.customers.Get(c.UserContext(), id)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c, 10)
	payments, total, err := h.payments.List(c.UserContext(), services.PaymentFilter{CustomerID: &customer.ID}, pg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"customer": fiber.Map{"id": customer.ID, "name": customer.Name},
			"payments": payments,
		},
		"pagination": pg.Meta(total),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
