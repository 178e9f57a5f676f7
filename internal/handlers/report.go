package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/legionbilling/internal/services"
)

// ReportHandler serves /api/reports.
type ReportHandler struct {
	reports *services.ReportService
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Revenue returns monthly completed-payment revenue.
func (h *ReportHandler) Revenue(c *fiber.Ctx) error {
	report, err := h.reports.Revenue(c.UserContext(), c.QueryInt("months", 6))
	if err != nil {
		return err
	}
	return ok(c, report)
}

// Customers returns the customer breakdown.
func (h *ReportHandler) Customers(c *fiber.Ctx) error {
	report, err := h.reports.Customers(c.UserContext(), c.QueryInt("months", 6))
	if err != nil {
		return err
	}
	return ok(c, report)
}

// Payments returns the payment breakdown.
func (h *ReportHandler) Payments(c *fiber.Ctx) error {
	report, err := h.reports.Payments(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, report)
}

// Usage has no data source yet.
func (h *ReportHandler) Usage(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotImplemented, "Usage reports not implemented yet")
}
