package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habit-league/config"
	"habit-league/handlers"
	"habit-league/middleware"
	"habit-league/models"
	"habit-league/services"
	"habit-league/telemetry"
	"habit-league/utils"
	"habit-league/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Completions keep pointing at habits that were removed from the group.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	var photos services.PhotoStorage
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Storage(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		photos = r2
	} else {
		log.Println("⚠️  R2 not configured, storing photos under ./uploads")
		local, err := utils.NewLocalStorage("./uploads", "/uploads")
		if err != nil {
			log.Fatal("failed to ensure upload dir: ", err)
		}
		photos = local
	}

	metrics := telemetry.NewMetrics()
	clock := clockwork.NewRealClock()

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PushRelayURL != "" {
		dispatcher := workers.NewPushDispatcher(cfg.PushRelayURL, cfg.PushRelayToken, workers.PushDispatcherOptions{Metrics: metrics})
		dispatcher.Start(ctx)
		notifier = dispatcher
	}

	store := services.NewGormStore(db)
	dashboard := services.NewDashboardService(db, clock, cfg.Location)
	rounds := services.NewRoundService(store, notifier, clock, cfg.Location, metrics)
	reminders := services.NewReminderService(db,
		services.NewReminderEngine(clock, cfg.Location, services.GormStateStore{DB: db}),
		dashboard, notifier)

	sched, err := services.StartScheduler(ctx, services.SchedulerConfig{
		Clock:         clock,
		SweepInterval: cfg.RoundSweepInterval,
		RemindEvery:   cfg.ReminderInterval,
	}, rounds, reminders)
	if err != nil {
		log.Fatal("failed to start scheduler: ", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: 12 * 1024 * 1024,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, " + middleware.SessionHeader + ", " + middleware.GroupHeader,
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	// Probes bypass the gateway check.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "db unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	// 🔐❗ Everything below only accepts Gateway requests
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	if !cfg.R2.Enabled() {
		app.Static("/uploads", "./uploads")
	}

	handlers.SetupRoutes(app, handlers.Services{
		Groups:      services.NewGroupService(db, photos, clock, cfg.Location),
		Rounds:      rounds,
		Dashboard:   dashboard,
		Completions: services.NewCompletionService(db, photos, notifier, clock, cfg.Location, metrics),
		Disputes:    services.NewDisputeService(store, notifier, clock, metrics),
		Annual:      services.NewAnnualService(db),
		Reminders:   reminders,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s (timezone %s)", cfg.Port, cfg.Location)
	log.Println("✅ GatewayAuthMiddleware enforced on API routes")
	log.Printf("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
