package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyEmail       = "user_email"
	KeyRole        = "user_role"
	KeyIsAdmin     = "isAdmin"
)
