package controller

import (
	"errors"
	"log"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailrules/models"
	"mailrules/utils"
)

type RuleController struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewRuleController(db *gorm.DB, logger *log.Logger) *RuleController {
	return &RuleController{
		db:     db,
		logger: logger,
	}
}

type ruleConditionInput struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Value    string `json:"value" validate:"required"`
}

type ruleActionInput struct {
	Type     string `json:"type" validate:"required"`
	Template string `json:"template"`
	To       string `json:"to"`
	Label    string `json:"label"`
}

type ruleInput struct {
	Name        string               `json:"name" validate:"required,min=1,max=120"`
	Description string               `json:"description" validate:"max=500"`
	IsActive    *bool                `json:"is_active"`
	Priority    int                  `json:"priority"`
	Conditions  []ruleConditionInput `json:"conditions" validate:"dive"`
	Actions     []ruleActionInput    `json:"actions" validate:"required,min=1,dive"`
}

// validateRuleInput checks the enum fields and action parameters the
// validator tags cannot express. An empty condition list is legal: such a
// rule matches every message.
func validateRuleInput(input *ruleInput) error {
	for _, cond := range input.Conditions {
		if !models.ValidField(cond.Field) {
			return errors.New("condition field must be one of from, to, subject, body")
		}
		if !models.ValidOperator(cond.Operator) {
			return errors.New("condition operator must be one of contains, equals, startsWith, endsWith, matches")
		}
		if cond.Operator == models.OpMatches {
			if _, err := regexp.Compile("(?i)" + cond.Value); err != nil {
				return errors.New("condition value is not a valid regular expression")
			}
		}
	}

	for _, action := range input.Actions {
		if !models.ValidActionType(action.Type) {
			return errors.New("action type must be one of reply, forward, archive, label")
		}
		switch action.Type {
		case models.ActionReply:
			if action.Template == "" {
				return errors.New("reply action requires a template")
			}
		case models.ActionForward:
			if err := utils.ValidateEmailAddress(action.To, false); err != nil {
				return errors.New("forward action requires a valid recipient address")
			}
		case models.ActionLabel:
			if action.Label == "" {
				return errors.New("label action requires a label name")
			}
		}
	}
	return nil
}

func (rc *RuleController) CreateRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input ruleInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := validateRuleInput(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	rule := models.Rule{
		UserID:      user.ID,
		Name:        input.Name,
		Description: input.Description,
		IsActive:    input.IsActive == nil || *input.IsActive,
		Priority:    input.Priority,
	}
	for _, cond := range input.Conditions {
		rule.Conditions = append(rule.Conditions, models.RuleCondition{
			Field:    cond.Field,
			Operator: cond.Operator,
			Value:    cond.Value,
		})
	}
	for _, action := range input.Actions {
		rule.Actions = append(rule.Actions, models.RuleAction{
			Type:     action.Type,
			Template: action.Template,
			To:       action.To,
			Label:    action.Label,
		})
	}

	if err := rc.db.Create(&rule).Error; err != nil {
		rc.logger.Printf("create rule for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create rule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (rc *RuleController) GetRules(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var ruleSet []models.Rule
	err := rc.db.Where("user_id = ?", user.ID).
		Preload("Conditions").
		Preload("Actions").
		Order("priority DESC, id ASC").
		Find(&ruleSet).Error
	if err != nil {
		rc.logger.Printf("list rules for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch rules",
		})
	}

	return c.JSON(ruleSet)
}

func (rc *RuleController) GetRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	ruleID := utils.ParseUint(c.Params("id"))

	rule, err := rc.findUserRule(user.ID, ruleID)
	if err != nil {
		return ruleNotFound(c, err)
	}
	return c.JSON(rule)
}

func (rc *RuleController) UpdateRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	ruleID := utils.ParseUint(c.Params("id"))

	rule, err := rc.findUserRule(user.ID, ruleID)
	if err != nil {
		return ruleNotFound(c, err)
	}

	var input ruleInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := validateRuleInput(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	err = rc.db.Transaction(func(tx *gorm.DB) error {
		rule.Name = input.Name
		rule.Description = input.Description
		rule.Priority = input.Priority
		if input.IsActive != nil {
			rule.IsActive = *input.IsActive
		}
		if err := tx.Model(rule).Select("Name", "Description", "Priority", "IsActive").Updates(rule).Error; err != nil {
			return err
		}

		// Conditions and actions are replaced wholesale on update
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&models.RuleCondition{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&models.RuleAction{}).Error; err != nil {
			return err
		}

		for _, cond := range input.Conditions {
			if err := tx.Create(&models.RuleCondition{
				RuleID:   rule.ID,
				Field:    cond.Field,
				Operator: cond.Operator,
				Value:    cond.Value,
			}).Error; err != nil {
				return err
			}
		}
		for _, action := range input.Actions {
			if err := tx.Create(&models.RuleAction{
				RuleID:   rule.ID,
				Type:     action.Type,
				Template: action.Template,
				To:       action.To,
				Label:    action.Label,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		rc.logger.Printf("update rule %d: %v", rule.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update rule",
		})
	}

	updated, err := rc.findUserRule(user.ID, ruleID)
	if err != nil {
		return ruleNotFound(c, err)
	}
	return c.JSON(updated)
}

// ToggleRule flips the active flag without touching conditions or actions.
func (rc *RuleController) ToggleRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	ruleID := utils.ParseUint(c.Params("id"))

	rule, err := rc.findUserRule(user.ID, ruleID)
	if err != nil {
		return ruleNotFound(c, err)
	}

	newState := !rule.IsActive
	if err := rc.db.Model(rule).Update("is_active", newState).Error; err != nil {
		rc.logger.Printf("toggle rule %d: %v", rule.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to toggle rule",
		})
	}

	return c.JSON(fiber.Map{
		"id":        rule.ID,
		"is_active": newState,
	})
}

func (rc *RuleController) DeleteRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	ruleID := utils.ParseUint(c.Params("id"))

	rule, err := rc.findUserRule(user.ID, ruleID)
	if err != nil {
		return ruleNotFound(c, err)
	}

	if err := rc.db.Select("Conditions", "Actions").Delete(rule).Error; err != nil {
		rc.logger.Printf("delete rule %d: %v", rule.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete rule",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Rule deleted",
	})
}

func (rc *RuleController) findUserRule(userID, ruleID uint) (*models.Rule, error) {
	var rule models.Rule
	err := rc.db.Where("id = ? AND user_id = ?", ruleID, userID).
		Preload("Conditions").
		Preload("Actions").
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func ruleNotFound(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Rule not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to fetch rule",
	})
}
