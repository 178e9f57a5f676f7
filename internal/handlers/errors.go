package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/services"
	"github.com/example/legionbilling/internal/services/daraja"
)

// ErrorHandler renders every error returned by a handler as the standard
// {success:false, message} envelope. Outside production 5xx responses also
// carry the underlying error text.
func ErrorHandler(production bool, log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, message := classify(err)

		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("request_id", middleware.RequestID(c)),
				zap.Error(err),
			)
		}

		body := fiber.Map{
			"success": false,
			"message": message,
		}
		if !production && code >= fiber.StatusInternalServerError {
			body["error"] = err.Error()
		}
		return c.Status(code).JSON(body)
	}
}

func classify(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		switch {
		case errors.Is(svcErr.Kind, services.ErrNotFound):
			return fiber.StatusNotFound, svcErr.Message
		case errors.Is(svcErr.Kind, services.ErrValidation), errors.Is(svcErr.Kind, services.ErrConflict):
			return fiber.StatusBadRequest, svcErr.Message
		}
	}

	switch {
	case errors.Is(err, daraja.ErrTokenUnavailable):
		return fiber.StatusBadGateway, "Failed to authenticate with the payment gateway"
	case errors.Is(err, daraja.ErrRejected):
		return fiber.StatusBadGateway, "Payment request was rejected by the gateway"
	case errors.Is(err, services.ErrGateway):
		return fiber.StatusBadGateway, "Payment gateway is unavailable"
	}

	return fiber.StatusInternalServerError, "Internal server error"
}
