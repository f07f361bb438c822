package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailrules/models"
	"mailrules/utils"
)

type LogController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewLogController(db *gorm.DB, logger *log.Logger) *LogController {
	return &LogController{
		db:     db,
		logger: logger,
	}
}

// GetLogs returns the user's processing history, newest first, optionally
// filtered by status.
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := lc.db.Model(&models.EmailLog{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		lc.logger.Printf("count logs for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch logs",
		})
	}

	var entries []models.EmailLog
	err := query.Preload("Rule").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		lc.logger.Printf("list logs for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch logs",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (lc *LogController) GetLog(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	logID := utils.ParseUint(c.Params("id"))

	var entry models.EmailLog
	err := lc.db.Where("id = ? AND user_id = ?", logID, user.ID).
		Preload("Rule").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Log entry not found",
			})
		}
		lc.logger.Printf("load log %d: %v", logID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch log entry",
		})
	}

	return c.JSON(entry)
}
