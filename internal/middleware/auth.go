package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cinder/storyboard/internal/auth"
	"github.com/cinder/storyboard/pkg/response"
)

// AuthMiddleware resolves the caller's identity. Tokens are checked against
// Zitadel JWKS first, then the legacy HMAC secret. Guests are let through
// only when explicitly allowed.
type AuthMiddleware struct {
	verifier    auth.TokenVerifier
	jwtSecret   string
	allowGuests bool
}

// NewAuthMiddleware creates auth middleware with Zitadel JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// NewAuthMiddlewareWithFallback creates auth middleware with both JWKS and legacy HMAC support
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, jwtSecret: jwtSecret}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// AllowGuests enables the X-Guest-Id fallback for requests without a token
func (m *AuthMiddleware) AllowGuests(allow bool) *AuthMiddleware {
	m.allowGuests = allow
	return m
}

// Authenticate validates the bearer token, or the guest identity when allowed.
// WebSocket upgrades may pass ?token= or ?guestId= since browsers cannot set headers there.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return response.Unauthorized(c, err.Error())
		}

		if tokenString == "" {
			if m.allowGuests {
				if guestID, ok := auth.GuestUserID(guestIdentifier(c)); ok {
					c.Locals("userId", guestID)
					c.Locals("guest", true)
					return c.Next()
				}
			}
			return response.Unauthorized(c, "Missing authorization header")
		}

		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				c.Locals("userId", claims.UserID)
				c.Locals("email", claims.Email)
				c.Locals("name", claims.Name)
				c.Locals("claims", claims)
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}

			c.Locals("userId", claims.UserID)
			c.Locals("email", claims.Email)
			c.Locals("claims", claims)
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

type authError string

func (e authError) Error() string { return string(e) }

// bearerToken returns "" when the request carries no credentials at all
func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Query("token"), nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", authError("Invalid authorization header format")
	}
	return parts[1], nil
}

func guestIdentifier(c *fiber.Ctx) string {
	if id := c.Get("X-Guest-Id"); id != "" {
		return id
	}
	return c.Query("guestId")
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}

// IsGuest reports whether the request was admitted as a guest
func IsGuest(c *fiber.Ctx) bool {
	guest, _ := c.Locals("guest").(bool)
	return guest
}

// GenerateToken issues a legacy HMAC token (useful for testing and the CLI)
func (m *AuthMiddleware) GenerateToken(userID, email string) (string, error) {
	return auth.IssueLegacyToken(userID, email, m.jwtSecret, 24*time.Hour)
}
