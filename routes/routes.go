package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "mailrules/controllers"
	"mailrules/middleware"
	"mailrules/monitor"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, supervisor *monitor.Supervisor, factory monitor.AdapterFactory) {
	monitorController := controller.NewMonitorController(supervisor, log.New(os.Stdout, "MONITOR: ", log.LstdFlags))
	ruleController := controller.NewRuleController(db, log.New(os.Stdout, "RULE: ", log.LstdFlags))
	mailboxController := controller.NewMailboxController(db, factory, log.New(os.Stdout, "MAILBOX: ", log.LstdFlags))
	logController := controller.NewLogController(db, log.New(os.Stdout, "LOG: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Monitoring lifecycle; start/stop/test open transport sessions
	// against the user's mail server, so they are rate limited.
	monitoring := api.Group("/monitoring")
	monitoring.Post("/start", middleware.MonitorRateLimiter(), monitorController.StartMonitoring)
	monitoring.Post("/stop", middleware.MonitorRateLimiter(), monitorController.StopMonitoring)
	monitoring.Get("/status", monitorController.GetMonitoringStatus)

	// Rule routes
	rule := api.Group("/rules")
	rule.Post("/", ruleController.CreateRule)
	rule.Get("/", ruleController.GetRules)
	rule.Get("/:id", ruleController.GetRule)
	rule.Put("/:id", ruleController.UpdateRule)
	rule.Patch("/:id/toggle", ruleController.ToggleRule)
	rule.Delete("/:id", ruleController.DeleteRule)

	// Mailbox settings routes
	mailbox := api.Group("/mailbox")
	mailbox.Get("/", mailboxController.GetMailbox)
	mailbox.Put("/", mailboxController.UpsertMailbox)
	mailbox.Post("/test", middleware.MonitorRateLimiter(), mailboxController.TestMailbox)

	// Processing history routes
	logs := api.Group("/logs")
	logs.Get("/", logController.GetLogs)
	logs.Get("/:id", logController.GetLog)

	// Websocket stream of processing events; authenticates via the
	// first client message rather than the upgrade request.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/monitoring", websocket.New(controller.HandleMonitorEventsWS(db)))
}
