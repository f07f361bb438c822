package models

import (
	"gorm.io/gorm"
)

// Condition fields and operators.
const (
	FieldFrom    = "from"
	FieldTo      = "to"
	FieldSubject = "subject"
	FieldBody    = "body"

	OpContains   = "contains"
	OpEquals     = "equals"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
	OpMatches    = "matches" // case-insensitive regexp
)

// Action types.
const (
	ActionReply   = "reply"
	ActionForward = "forward"
	ActionArchive = "archive"
	ActionLabel   = "label"
)

// Rule is a user-defined condition set plus the actions to run when an
// incoming message matches. Rules are evaluated in descending priority
// order; ties keep creation order. A rule with no conditions matches every
// message.
type Rule struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`
	Priority    int    `gorm:"default:0;index" json:"priority"`

	Conditions []RuleCondition `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"conditions"`
	Actions    []RuleAction    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"actions"`

	// Relations
	User User `json:"-"`
}

// RuleCondition is a single predicate over one message field. All of a
// rule's conditions must hold for the rule to match.
type RuleCondition struct {
	gorm.Model
	RuleID uint `gorm:"not null;index" json:"rule_id"`

	Field    string `gorm:"not null" json:"field"`    // from, to, subject, body
	Operator string `gorm:"not null" json:"operator"` // contains, equals, startsWith, endsWith, matches
	Value    string `gorm:"not null" json:"value"`
}

// RuleAction is one side-effecting operation to run for a matched rule.
// Actions run in declared order; a failing action does not stop the rest.
type RuleAction struct {
	gorm.Model
	RuleID uint `gorm:"not null;index" json:"rule_id"`

	Type     string `gorm:"not null" json:"type"` // reply, forward, archive, label
	Template string `json:"template,omitempty"`   // reply body
	To       string `json:"to,omitempty"`         // forward recipient
	Label    string `json:"label,omitempty"`      // label name
}

// ValidField reports whether f names a matchable message field.
func ValidField(f string) bool {
	switch f {
	case FieldFrom, FieldTo, FieldSubject, FieldBody:
		return true
	}
	return false
}

// ValidOperator reports whether op is a supported condition operator.
func ValidOperator(op string) bool {
	switch op {
	case OpContains, OpEquals, OpStartsWith, OpEndsWith, OpMatches:
		return true
	}
	return false
}

// ValidActionType reports whether t is a supported action type.
func ValidActionType(t string) bool {
	switch t {
	case ActionReply, ActionForward, ActionArchive, ActionLabel:
		return true
	}
	return false
}
