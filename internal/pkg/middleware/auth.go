package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/identity"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

// RequireBearerAuth rejects requests without a valid bearer token with a JSON 401.
func RequireBearerAuth(verifier identity.Verifier, users repository.UserRepository) fiber.Handler {
	return bearerAuth(verifier, users, true)
}

// OptionalBearerAuth resolves the caller when a token is present and lets
// anonymous requests through. A present but invalid token is still a 401.
func OptionalBearerAuth(verifier identity.Verifier, users repository.UserRepository) fiber.Handler {
	return bearerAuth(verifier, users, false)
}

func bearerAuth(verifier identity.Verifier, users repository.UserRepository, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			if required {
				return unauthorized(c, "Missing bearer token")
			}
			return c.Next()
		}

		principal, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, "Invalid bearer token")
		}

		uc := usercontext.UserContext{
			Subject:    principal.Subject,
			Email:      principal.Email,
			Name:       principal.Name,
			Role:       models.ROLE_USER,
			IsLoggedIn: true,
		}

		// Roles live in the local users table; an account that has not been
		// registered yet acts as a plain user.
		user, err := users.GetByEmail(principal.Email)
		switch {
		case err == nil:
			uc.UserID = user.ID
			uc.Role = user.Role
			if uc.Name == "" {
				uc.Name = user.Name
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			log.Errorf("[Auth] User lookup for %s failed: %v", principal.Email, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "internal_server_error",
				"message": "User lookup failed",
			})
		}
		uc.IsAdmin = uc.Role == models.ROLE_ADMIN

		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}

// RequireRole allows callers holding one of roles. Admins always pass.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return unauthorized(c, "login required")
		}
		if !usercontext.HasRole(c, roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "insufficient role",
			})
		}
		return c.Next()
	}
}

// RequireAdmin allows admins only.
func RequireAdmin() fiber.Handler {
	return RequireRole(models.ROLE_ADMIN)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
