package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/metastudy/metastudy-api/internal/utils"
)

// RequireRole restricts a route to the given roles. It must run after
// JWTProtected so user_role is populated.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "missing role")
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
