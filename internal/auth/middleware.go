package auth

import (
	"strings"

	"battery_log/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const claimsKey = "auth.claims"

// RequireAuth rejects requests without a valid "Bearer <token>" header and
// stores the verified claims for later handlers.
func RequireAuth(issuer *Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperr.Auth("No token provided")
		}

		claims, err := issuer.Verify(parts[1])
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected bearer token")
			return apperr.Auth("Invalid or expired token")
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return apperr.Auth("No token provided")
		}
		if !claims.IsAdmin() {
			return apperr.Forbidden("Admins only")
		}
		return c.Next()
	}
}

// ClaimsFrom returns the claims RequireAuth stored, or nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}
