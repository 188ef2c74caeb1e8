package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the verified caller of a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Subject    string `json:"subject"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// SetUserContext stores uc for the rest of the request.
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyEmail, uc.Email)
	c.Locals(KeyRole, uc.Role)
	c.Locals(KeyIsAdmin, uc.IsAdmin)
}

// IsLoggedIn checks if the current request carries a verified identity
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetEmail returns the verified email, or empty string if anonymous
func GetEmail(c *fiber.Ctx) string {
	return GetUserContext(c).Email
}

// HasRole reports whether the caller holds one of roles. Admins pass every check.
func HasRole(c *fiber.Ctx, roles ...string) bool {
	uc := GetUserContext(c)
	if !uc.IsLoggedIn {
		return false
	}
	if uc.IsAdmin {
		return true
	}
	for _, r := range roles {
		if uc.Role == r {
			return true
		}
	}
	return false
}
