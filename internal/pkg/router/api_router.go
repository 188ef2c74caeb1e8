package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ContestHub/app/controllers"
	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	apiv1 "github.com/ManuelReschke/ContestHub/internal/api/v1"
	"github.com/ManuelReschke/ContestHub/internal/pkg/cache"
	"github.com/ManuelReschke/ContestHub/internal/pkg/identity"
	"github.com/ManuelReschke/ContestHub/internal/pkg/middleware"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
)

// Settlement is what the API needs from the settlement service.
type Settlement interface {
	controllers.Settler
	HasPaid(ctx context.Context, contestID uint, email string) (bool, error)
}

// Dependencies are the services the API routes are built from.
type Dependencies struct {
	Repos      *repository.Repositories
	Verifier   identity.Verifier
	Processor  payment.Processor
	Settlement Settlement
	Cache      cache.Store
	// LimiterStorage shares rate-limit counters between instances; nil keeps
	// them in memory.
	LimiterStorage fiber.Storage
	RateLimit      int
	// WebhookSecret registers the processor webhook when set.
	WebhookSecret string
}

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limit := h.deps.RateLimit
	if limit <= 0 {
		limit = 120
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer())
	h.registerRoutes(v1)
}

func (h ApiRouter) registerRoutes(v1 fiber.Router) {
	repos := h.deps.Repos
	requireAuth := middleware.RequireBearerAuth(h.deps.Verifier, repos.User)
	optionalAuth := middleware.OptionalBearerAuth(h.deps.Verifier, repos.User)
	requireCreator := middleware.RequireRole(models.ROLE_CREATOR)
	requireAdmin := middleware.RequireAdmin()

	contestController := controllers.NewContestController(repos.Contest, h.deps.Cache)
	userController := controllers.NewUserController(repos.User)
	taskController := controllers.NewTaskController(repos.Contest, repos.Task, h.deps.Settlement)
	winController := controllers.NewWinController(repos.Contest, repos.Task, repos.Win)
	paymentController := controllers.NewPaymentController(repos.Contest, h.deps.Processor, h.deps.Settlement).
		WithWebhookSecret(h.deps.WebhookSecret)

	// contests
	v1.Get("/contests", contestController.HandleList)
	v1.Get("/top-contests", contestController.HandleTop)
	v1.Get("/contests/mine", requireAuth, requireCreator, contestController.HandleMine)
	v1.Get("/contests/:id", optionalAuth, contestController.HandleGet)
	v1.Post("/contests", requireAuth, requireCreator, contestController.HandleCreate)
	v1.Patch("/contests/:id", requireAuth, contestController.HandleUpdate)
	v1.Delete("/contests/:id", requireAuth, contestController.HandleDelete)
	v1.Get("/contests/:id/tasks", requireAuth, taskController.HandleListForContest)
	v1.Post("/contests/:id/winner", requireAuth, winController.HandleDeclareWinner)

	// users
	v1.Post("/users", requireAuth, userController.HandleRegister)
	v1.Get("/users/me", requireAuth, userController.HandleMe)

	// tasks and wins
	v1.Post("/tasks", requireAuth, taskController.HandleSubmit)
	v1.Get("/wins/mine", requireAuth, winController.HandleMine)
	v1.Get("/leaderboard", winController.HandleLeaderboard)

	// payments
	v1.Post("/create-checkout-session", optionalAuth, paymentController.HandleCreateCheckoutSession)
	v1.Get("/payment-success", paymentController.HandlePaymentSuccess)
	v1.Patch("/payment-success", paymentController.HandlePaymentSuccess)
	if h.deps.WebhookSecret != "" {
		v1.Post("/payments/webhook", paymentController.HandleWebhook)
	}
	v1.Get("/payments/mine", requireAuth, paymentController.HandleMine)
	v1.Get("/payments/:trackingid", requireAuth, paymentController.HandleGetByTrackingID)

	// admin
	admin := v1.Group("/admin", requireAuth, requireAdmin)
	admin.Get("/contests", contestController.HandleAdminList)
	admin.Patch("/contests/:id/status", contestController.HandleAdminSetStatus)
	admin.Get("/users", userController.HandleAdminList)
	admin.Patch("/users/role", userController.HandleAdminSetRole)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
