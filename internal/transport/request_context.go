package transport

import (
	"github.com/gofiber/fiber/v2"

	"github.com/voxhub/notify-engine/internal/observability"
)

// RequestContext seeds the request-scoped context with the request id
// stamped by the requestid middleware, so downstream services and the
// error handler can attach it to their logs.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if requestID, ok := c.Locals("requestid").(string); ok && requestID != "" {
			c.SetUserContext(observability.WithRequestID(c.Context(), requestID))
		}
		return c.Next()
	}
}
