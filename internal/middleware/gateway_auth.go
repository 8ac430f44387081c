package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware reads the caller from the X-User-* headers set by
// Traefik ForwardAuth. A request the gateway let through without an identity
// is anonymous.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID := c.Get("X-User-Id"); userID != "" {
			c.Locals("userId", userID)
			c.Locals("email", c.Get("X-User-Email"))
		}
		return c.Next()
	}
}
