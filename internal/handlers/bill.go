package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

// BillHandler serves /api/bills.
type BillHandler struct {
	bills *services.BillService
}

// NewBillHandler constructs a BillHandler.
func NewBillHandler(bills *services.BillService) *BillHandler {
	return &BillHandler{bills: bills}
}

type billRequest struct {
	CustomerID  string           `json:"customerId"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	DueDate     *string          `json:"dueDate"`
	Status      *string          `json:"status"`
}

type generateBillsRequest struct {
	DueDate     string `json:"dueDate"`
	Description string `json:"description"`
}

// List returns a page of bills.
func (h *BillHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c, 50)

	status := c.Query("status")
	if status != "" && !models.IsBillStatus(status) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
	}
	customerID, err := queryUUID(c, "customerId", "customer_id")
	if err != nil {
		return err
	}

	bills, total, err := h.bills.List(c.UserContext(), services.BillFilter{
		Status:     status,
		CustomerID: customerID,
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, bills, pg, total)
}

// Get returns one bill.
func (h *BillHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "bill")
	if err != nil {
		return err
	}
	bill, err := h.bills.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, bill)
}

// Create issues a bill.
func (h *BillHandler) Create(c *fiber.Ctx) error {
	var req billRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.CustomerID == "" || req.Amount == nil || req.DueDate == nil {
		return fiber.NewError(fiber.StatusBadRequest, "customerId, amount and dueDate are required")
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid customerId")
	}
	dueDate, err := utils.ParseDate(*req.DueDate)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "dueDate must be YYYY-MM-DD or RFC3339")
	}

	bill, err := h.bills.Create(c.UserContext(), actorFrom(c), services.BillInput{
		CustomerID:  customerID,
		Amount:      *req.Amount,
		Description: deref(req.Description),
		DueDate:     dueDate,
	})
	if err != nil {
		return err
	}
	return created(c, bill, "Bill created successfully")
}

// Update patches a bill.
func (h *BillHandler) Update(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "bill")
	if err != nil {
		return err
	}

	var req billRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	update := services.BillUpdate{
		Amount:      req.Amount,
		Description: req.Description,
		Status:      req.Status,
	}
	if req.DueDate != nil {
		dueDate, err := utils.ParseDate(*req.DueDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "dueDate must be YYYY-MM-DD or RFC3339")
		}
		update.DueDate = &dueDate
	}

	bill, err := h.bills.Update(c.UserContext(), actorFrom(c), id, update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Bill updated successfully",
		"data":    bill,
	})
}

// Delete removes a bill.
func (h *BillHandler) Delete(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "bill")
	if err != nil {
		return err
	}
	if err := h.bills.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Bill deleted successfully",
	})
}

// Generate issues a bill to every active customer.
func (h *BillHandler) Generate(c *fiber.Ctx) error {
	var req generateBillsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	// A zero due date lets the service default to 30 days out.
	var dueDate time.Time
	if req.DueDate != "" {
		parsed, err := utils.ParseDate(req.DueDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "dueDate must be YYYY-MM-DD or RFC3339")
		}
		dueDate = parsed
	}

	bills, err := h.bills.Generate(c.UserContext(), actorFrom(c), dueDate, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Bills generated successfully",
		"data": fiber.Map{
			"count": len(bills),
			"bills": bills,
		},
	})
}

// Stats returns bill totals.
func (h *BillHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.bills.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, stats)
}

// UpdateOverdue reports how many bills are past due. Overdue is derived
// from the due date at read time, so nothing is written.
func (h *BillHandler) UpdateOverdue(c *fiber.Ctx) error {
	count, err := h.bills.CountOverdue(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Overdue bills counted",
		"data":    fiber.Map{"overdue": count},
	})
}
