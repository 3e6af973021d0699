package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"coursegate/backend/apperrors"
	"coursegate/backend/config"
	"coursegate/backend/middleware"
	"coursegate/backend/routes"
	"coursegate/backend/services"
	"coursegate/backend/utils"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database; an unreachable store is fatal, not something to
	// queue requests against.
	db, err := utils.InitDB(cfg)
	if err != nil {
		logger.Fatalw("error initializing database", "error", err)
	}

	validate := validator.New()

	// Outbound notification worker
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailer := services.NewMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	notifier := services.NewNotifier(db, mailer, logger, cfg.NotifyQueueSize)
	notifier.Start(ctx)

	// Services
	progression := services.NewProgressionService(db)
	payments := services.NewPaymentService(db, progression, notifier)
	quizzes := services.NewQuizService(db, progression, payments)
	stream := services.NewStreamService(db, cfg, progression, payments)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: apperrors.Handler(logger),
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Range",
	}))
	app.Use(middleware.LoggingMiddleware(logger))

	// Setup routes
	routes.SetupRoutes(app, db, cfg, validate, routes.Services{
		Payments:    payments,
		Progression: progression,
		Quizzes:     quizzes,
		Stream:      stream,
	})

	go func() {
		<-ctx.Done()
		logger.Infow("shutting down")
		if err := app.Shutdown(); err != nil {
			logger.Errorw("shutdown error", "error", err)
		}
	}()

	// Start server
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalw("server error", "error", err)
	}

	// Let the notifier drain what is already queued.
	<-notifier.Done()
}
