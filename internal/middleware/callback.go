package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CallbackAck is the body Daraja expects for every callback delivery.
var CallbackAck = fiber.Map{"ResultCode": 0, "ResultDesc": "Success"}

// CallbackGuard checks the shared secret carried in the callback URL's
// token query parameter. Rejected deliveries are still acknowledged so the
// gateway does not retry them, but never reach the handler. An empty secret
// disables the check.
func CallbackGuard(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		token := c.Query("token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			log.Warn("callback rejected: bad token",
				zap.String("ip", c.IP()),
				zap.String("request_id", RequestID(c)),
			)
			return c.Status(fiber.StatusOK).JSON(CallbackAck)
		}

		return c.Next()
	}
}
