package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ContestHub/app/controllers"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/cache"
	"github.com/ManuelReschke/ContestHub/internal/pkg/database"
	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
	"github.com/ManuelReschke/ContestHub/internal/pkg/identity"
	"github.com/ManuelReschke/ContestHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ContestHub/internal/pkg/ledgerexport"
	"github.com/ManuelReschke/ContestHub/internal/pkg/middleware"
	"github.com/ManuelReschke/ContestHub/internal/pkg/payment"
	"github.com/ManuelReschke/ContestHub/internal/pkg/router"
	"github.com/ManuelReschke/ContestHub/internal/pkg/settlement"
)

func main() {
	app, manager := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[App] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[App] Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[App] HTTP shutdown: %v", err)
	}
	manager.Stop()
	if err := database.Close(); err != nil {
		log.Errorf("[App] Closing database: %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Errorf("[App] Closing cache: %v", err)
	}
}

// NewApplication wires the HTTP app and starts the background job manager.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	db := database.SetupDatabase()
	cache.SetupCache()

	identityCfg, err := identity.LoadConfig()
	if err != nil {
		log.Fatalf("[App] Identity config: %v", err)
	}
	verifier, err := identity.NewVerifierFromConfig(identityCfg)
	if err != nil {
		log.Fatalf("[App] Identity verifier: %v", err)
	}

	paymentCfg, err := payment.LoadConfig()
	if err != nil {
		log.Fatalf("[App] Payment config: %v", err)
	}
	processor, err := payment.NewStripeProcessor(paymentCfg)
	if err != nil {
		log.Fatalf("[App] Payment processor: %v", err)
	}

	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()
	store := cache.NewStore()

	// The settlement service defers failed participation updates to the
	// queue, and the queue applies them through the service.
	queue := jobqueue.NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", 3))
	settler := settlement.NewServiceFromDB(db, processor,
		settlement.WithParticipationFallback(queue.EnqueueParticipation),
		settlement.WithParticipationListener(controllers.NewContestController(repos.Contest, store).InvalidateTop),
	)

	processors := jobqueue.Processors{Participation: settler}
	exportCfg, err := ledgerexport.LoadConfig()
	if err != nil {
		log.Fatalf("[App] Ledger export config: %v", err)
	}
	if exportCfg.IsEnabled() {
		exporter, err := ledgerexport.NewS3Exporter(context.Background(), exportCfg, settler)
		if err != nil {
			log.Fatalf("[App] Ledger export: %v", err)
		}
		processors.LedgerExport = exporter
	}
	queue.SetProcessors(processors)

	manager := jobqueue.NewManager(queue, jobqueue.ManagerConfig{
		SweepInterval: time.Duration(env.GetEnvInt("PARTICIPATION_SWEEP_MINUTES", 5)) * time.Minute,
		Pending:       settler,
		ExportEnabled: exportCfg.IsEnabled(),
	})
	manager.Start()

	app := fiber.New(fiber.Config{
		AppName:   "ContestHub",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization}, ", "),
	}))

	// fiber metrics
	app.Get("/metrics", middleware.MetricsAuth(middleware.MetricsCredentials{
		User:         env.GetEnv("METRICS_USER", "admin"),
		Password:     env.GetEnv("METRICS_PASSWORD", ""),
		PasswordHash: env.GetEnv("METRICS_PASSWORD_HASH", ""),
	}), monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	router.InstallRouter(app, router.Dependencies{
		Repos:          repos,
		Verifier:       verifier,
		Processor:      processor,
		Settlement:     settler,
		Cache:          store,
		LimiterStorage: router.NewLimiterStorage(),
		RateLimit:      env.GetEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		WebhookSecret:  paymentCfg.WebhookSecret,
	})

	log.Info("[App] ContestHub ready")
	return app, manager
}
