package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

// AdminHandler serves the dashboard summary and operator management.
type AdminHandler struct {
	db        *gorm.DB
	customers *services.CustomerService
	bills     *services.BillService
	payments  *services.PaymentService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, customers *services.CustomerService, bills *services.BillService, payments *services.PaymentService) *AdminHandler {
	return &AdminHandler{db: db, customers: customers, bills: bills, payments: payments}
}

// Dashboard returns the headline numbers for the admin dashboard.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()

	customerStats, err := h.customers.Stats(ctx)
	if err != nil {
		return err
	}
	billStats, err := h.bills.Stats(ctx)
	if err != nil {
		return err
	}
	paymentStats, err := h.payments.Stats(ctx)
	if err != nil {
		return err
	}

	recent, _, err := h.payments.List(ctx, services.PaymentFilter{}, utils.NewPagination(1, 5, 5))
	if err != nil {
		return err
	}

	return ok(c, fiber.Map{
		"customers": fiber.Map{
			"total":  customerStats.Total,
			"active": customerStats.ByStatus[models.CustomerStatusActive],
		},
		"bills": fiber.Map{
			"pending":     billStats.ByStatus[models.BillStatusPending],
			"overdue":     billStats.ByStatus[models.BillStatusOverdue],
			"outstanding": billStats.Outstanding,
		},
		"payments": fiber.Map{
			"pending":              paymentStats.ByStatus[models.PaymentStatusPending],
			"collected_today":      paymentStats.CollectedToday,
			"collected_this_month": paymentStats.CollectedMonth,
		},
		"recent_payments": recent,
	})
}

// ListUsers returns dashboard operators with pagination and search.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c, 20)
	query := h.db.WithContext(c.UserContext()).Model(&models.User{})

	if search := strings.ToLower(strings.TrimSpace(c.Query("search"))); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	return paginated(c, users, pg, total)
}

type updateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// UpdateUser changes an operator's role or active flag. Admins cannot
// demote or deactivate themselves.
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "user")
	if err != nil {
		return err
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	updates := map[string]any{}
	if req.Role != nil {
		if *req.Role != models.RoleAdmin && *req.Role != models.RoleStaff {
			return fiber.NewError(fiber.StatusBadRequest, "Role must be admin or staff")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Nothing to update")
	}

	if current, ok := middleware.GetCurrentUserID(c); ok && current == id {
		if (req.Role != nil && *req.Role != models.RoleAdmin) || (req.IsActive != nil && !*req.IsActive) {
			return fiber.NewError(fiber.StatusBadRequest, "You cannot demote or deactivate yourself")
		}
	}

	db := h.db.WithContext(c.UserContext())
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return err
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return err
	}
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User updated successfully",
		"data":    user,
	})
}
