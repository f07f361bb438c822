package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailrules/mailsource"
	"mailrules/models"
	"mailrules/monitor"
)

type MonitorController struct {
	supervisor *monitor.Supervisor
	logger     *log.Logger
}

func NewMonitorController(supervisor *monitor.Supervisor, logger *log.Logger) *MonitorController {
	return &MonitorController{
		supervisor: supervisor,
		logger:     logger,
	}
}

// StartMonitoring opens the mailbox transport for the authenticated user
// and schedules recurring scans. Starting twice is a conflict, not an
// error that opens a second transport session.
func (mc *MonitorController) StartMonitoring(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	err := mc.supervisor.Start(c.Context(), user.ID)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{
			"message": "Monitoring started",
		})
	case errors.Is(err, monitor.ErrAlreadyRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Monitoring is already active for this user",
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mailbox settings not found",
		})
	case errors.Is(err, models.ErrIncompleteIMAP),
		errors.Is(err, models.ErrIncompleteSMTP),
		errors.Is(err, models.ErrMissingToken),
		errors.Is(err, models.ErrUnknownProvider):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		var connErr *mailsource.ConnectError
		if errors.As(err, &connErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Could not connect to the mailbox: " + connErr.Err.Error(),
			})
		}
		mc.logger.Printf("start monitoring for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start monitoring",
		})
	}
}

// StopMonitoring tears down the user's monitor; stopping an already
// stopped monitor succeeds.
func (mc *MonitorController) StopMonitoring(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := mc.supervisor.Stop(user.ID); err != nil {
		mc.logger.Printf("stop monitoring for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to stop monitoring",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Monitoring stopped",
	})
}

// GetMonitoringStatus reports the lifecycle flag plus recent log entries.
func (mc *MonitorController) GetMonitoringStatus(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	status, err := mc.supervisor.Status(user.ID)
	if err != nil {
		mc.logger.Printf("status for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch monitoring status",
		})
	}

	return c.JSON(status)
}
