package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"mailrules/config"
	"mailrules/middleware"
	"mailrules/monitor"
	"mailrules/routes"
	"mailrules/rules"
	"mailrules/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "MONITOR: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: config.AppConfig.SentryDSN}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	mode, err := rules.ParseMode(config.AppConfig.MonitorMode)
	if err != nil {
		logger.Fatalf("Invalid monitor mode: %v", err)
	}

	store := monitor.NewGormStore(config.DB)
	factory := monitor.DefaultFactory(logger)
	supervisor := monitor.NewSupervisor(store, logger, monitor.Options{
		Interval:       config.AppConfig.ScanInterval,
		Mode:           mode,
		Factory:        factory,
		RecentLogCount: config.AppConfig.RecentLogCount,
	})

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Resume monitors that were enabled before the last shutdown
	monitorWorker := worker.NewMonitorWorker(store, supervisor, log.New(os.Stdout, "WORKER: ", log.LstdFlags))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitorWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, supervisor, factory)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Shut down cleanly on SIGINT/SIGTERM so in-flight scans finish
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Println("Shutting down...")
		cancel()
		supervisor.Shutdown()
		if err := app.Shutdown(); err != nil {
			logger.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
