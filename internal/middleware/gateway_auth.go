package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cinder/storyboard/internal/auth"
	"github.com/cinder/storyboard/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by Traefik ForwardAuth. With allowGuests, a request without
// identity headers may still pass on a valid X-Guest-Id.
func GatewayAuthMiddleware(allowGuests bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			if allowGuests {
				if guestID, ok := auth.GuestUserID(guestIdentifier(c)); ok {
					c.Locals("userId", guestID)
					c.Locals("guest", true)
					return c.Next()
				}
			}
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get("X-User-Email"))
		c.Locals("name", c.Get("X-User-Name"))

		return c.Next()
	}
}
