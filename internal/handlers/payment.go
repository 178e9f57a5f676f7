package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/utils"
)

// PaymentHandler serves /api/payments, including the M-Pesa flow.
type PaymentHandler struct {
	payments *services.PaymentService
	log      *zap.Logger
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

type initiateRequest struct {
	CustomerID  string          `json:"customerId"`
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phoneNumber"`
	BillID      *string         `json:"billId"`
}

type paymentRequest struct {
	CustomerID    string           `json:"customerId"`
	BillID        *string          `json:"billId"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod *string          `json:"paymentMethod"`
	TransactionID string           `json:"transactionId"`
	Notes         *string          `json:"notes"`
	Status        *string          `json:"status"`
}

// InitiateMpesa sends an STK push for a customer payment.
func (h *PaymentHandler) InitiateMpesa(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.CustomerID == "" || req.Amount.IsZero() || strings.TrimSpace(req.PhoneNumber) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "customerId, amount and phoneNumber are required")
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid customerId")
	}
	billID, err := optionalUUID(req.BillID, "billId")
	if err != nil {
		return err
	}

	result, err := h.payments.InitiateMpesa(c.UserContext(), actorFrom(c), services.InitiateInput{
		CustomerID:  customerID,
		BillID:      billID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return err
	}
	if !result.IsSimulated {
		h.payments.Watch(result.CheckoutRequestID)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Payment request sent to customer's phone",
		"data":    result,
	})
}

// MpesaStatus reports the state of a push request.
func (h *PaymentHandler) MpesaStatus(c *fiber.Ctx) error {
	checkoutID := strings.TrimSpace(c.Params("checkoutRequestID"))
	if checkoutID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "checkoutRequestID is required")
	}

	status, err := h.payments.CheckStatus(c.UserContext(), checkoutID)
	if err != nil {
		return err
	}
	return ok(c, status)
}

// MpesaCallback receives the gateway's asynchronous result. It always
// acknowledges; failures are only logged.
func (h *PaymentHandler) MpesaCallback(c *fiber.Ctx) error {
	if err := h.payments.HandleCallback(c.UserContext(), c.Body()); err != nil {
		h.log.Error("mpesa callback not applied",
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
	}
	return c.Status(fiber.StatusOK).JSON(middleware.CallbackAck)
}

// List returns a page of payments.
func (h *PaymentHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c, 10)

	status := c.Query("status")
	switch status {
	case "", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentStatusFailed:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Invalid status")
	}
	method := c.Query("method")
	if method != "" && !models.IsPaymentMethod(method) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid payment method")
	}
	customerID, err := queryUUID(c, "customerId", "customer_id")
	if err != nil {
		return err
	}

	payments, total, err := h.payments.List(c.UserContext(), services.PaymentFilter{
		Status:        status,
		PaymentMethod: method,
		CustomerID:    customerID,
	}, pg)
	if err != nil {
		return err
	}
	return paginated(c, payments, pg, total)
}

// Get returns one payment.
func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "payment")
	if err != nil {
		return err
	}
	payment, err := h.payments.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, payment)
}

// Create records a payment taken outside the gateway.
func (h *PaymentHandler) Create(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.CustomerID == "" || req.Amount == nil || req.PaymentMethod == nil {
		return fiber.NewError(fiber.StatusBadRequest, "customerId, amount and paymentMethod are required")
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid customerId")
	}
	billID, err := optionalUUID(req.BillID, "billId")
	if err != nil {
		return err
	}

	payment, err := h.payments.RecordPayment(c.UserContext(), actorFrom(c), services.RecordInput{
		CustomerID:    customerID,
		BillID:        billID,
		Amount:        *req.Amount,
		PaymentMethod: *req.PaymentMethod,
		TransactionID: req.TransactionID,
		Notes:         deref(req.Notes),
		Status:        deref(req.Status),
	})
	if err != nil {
		return err
	}
	return created(c, payment, "Payment recorded successfully")
}

// Update patches a payment.
func (h *PaymentHandler) Update(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", "payment")
	if err != nil {
		return err
	}

	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	payment, err := h.payments.UpdatePayment(c.UserContext(), actorFrom(c), id, services.UpdateInput{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Status:        req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Payment updated successfully",
		"data":    payment,
	})
}

// Stats returns payment totals.
func (h *PaymentHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.payments.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, stats)
}
