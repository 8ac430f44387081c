package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/prospectlens/api/internal/auth"
	"github.com/prospectlens/api/pkg/response"
)

// AuthMiddleware resolves the optional caller identity. Requests without a
// credential continue anonymously; a credential that fails verification is
// rejected, never downgraded to anonymous.
type AuthMiddleware struct {
	verifier auth.TokenVerifier
}

func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate validates the bearer token from the Authorization header when
// one is sent.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}
		if m.verifier == nil {
			return response.Unauthorized(c, "Authentication not configured")
		}

		claims, err := m.verifier.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}
		c.Locals("userId", claims.UserID)
		c.Locals("email", claims.Email)
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// CallerID is the resolved caller, or nil for anonymous requests.
func CallerID(c *fiber.Ctx) *string {
	if id := GetUserID(c); id != "" {
		return &id
	}
	return nil
}
