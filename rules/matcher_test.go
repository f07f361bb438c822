package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailrules/mailsource"
	"mailrules/models"
)

func rule(id uint, priority int, conds ...models.RuleCondition) models.Rule {
	return models.Rule{
		Model:      gorm.Model{ID: id},
		IsActive:   true,
		Priority:   priority,
		Conditions: conds,
	}
}

func cond(field, op, value string) models.RuleCondition {
	return models.RuleCondition{Field: field, Operator: op, Value: value}
}

func TestEvaluateOperators(t *testing.T) {
	msg := mailsource.Message{
		From:    "Billing <billing@vendor.example>",
		To:      "me@corp.example",
		Subject: "Invoice #4521 for March 2024",
		Body:    "Please find the attached invoice.",
	}

	tests := []struct {
		name    string
		cond    models.RuleCondition
		matches bool
	}{
		{"contains case-insensitive", cond(models.FieldSubject, models.OpContains, "INVOICE"), true},
		{"contains miss", cond(models.FieldSubject, models.OpContains, "receipt"), false},
		{"equals full value only", cond(models.FieldTo, models.OpEquals, "ME@CORP.EXAMPLE"), true},
		{"equals partial is a miss", cond(models.FieldTo, models.OpEquals, "me@corp"), false},
		{"startsWith", cond(models.FieldFrom, models.OpStartsWith, "billing"), true},
		{"endsWith", cond(models.FieldBody, models.OpEndsWith, "INVOICE."), true},
		{"matches regexp", cond(models.FieldSubject, models.OpMatches, `invoice.*2024`), true},
		{"matches is case-insensitive", cond(models.FieldSubject, models.OpMatches, `INVOICE #\d+`), true},
		{"matches miss", cond(models.FieldSubject, models.OpMatches, `invoice.*2023`), false},
		{"invalid regexp never matches", cond(models.FieldSubject, models.OpMatches, `invoice[`), false},
		{"unknown operator never matches", cond(models.FieldSubject, "fuzzy", "invoice"), false},
		{"unknown field never matches", cond("cc", models.OpContains, "me"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, Matches(msg, rule(1, 0, tt.cond)))
		})
	}
}

func TestAbsentFieldNeverMatches(t *testing.T) {
	// No body at all: even operators that would trivially hold on the
	// empty string must not fire.
	msg := mailsource.Message{From: "a@b.example", Subject: "hi"}

	assert.False(t, Matches(msg, rule(1, 0, cond(models.FieldBody, models.OpContains, ""))))
	assert.False(t, Matches(msg, rule(1, 0, cond(models.FieldBody, models.OpStartsWith, ""))))
	assert.False(t, Matches(msg, rule(1, 0, cond(models.FieldBody, models.OpMatches, ".*"))))
}

func TestRuleWithNoConditionsMatchesEverything(t *testing.T) {
	matched := Match(mailsource.Message{}, []models.Rule{rule(1, 0)}, AllMatches)
	require.Len(t, matched, 1)
	assert.Equal(t, uint(1), matched[0].ID)
}

func TestAllConditionsMustHold(t *testing.T) {
	msg := mailsource.Message{From: "boss@corp.example", Subject: "urgent: budget"}

	both := rule(1, 0,
		cond(models.FieldFrom, models.OpContains, "boss"),
		cond(models.FieldSubject, models.OpStartsWith, "urgent"),
	)
	oneMisses := rule(2, 0,
		cond(models.FieldFrom, models.OpContains, "boss"),
		cond(models.FieldSubject, models.OpStartsWith, "fyi"),
	)

	assert.True(t, Matches(msg, both))
	assert.False(t, Matches(msg, oneMisses))
}

func TestMatchOrderAndModes(t *testing.T) {
	msg := mailsource.Message{Subject: "weekly report"}

	ruleSet := []models.Rule{
		rule(3, 5, cond(models.FieldSubject, models.OpContains, "report")),
		rule(1, 10, cond(models.FieldSubject, models.OpContains, "report")),
		rule(2, 10, cond(models.FieldSubject, models.OpContains, "weekly")),
	}

	all := Match(msg, ruleSet, AllMatches)
	require.Len(t, all, 3)
	// Priority descending, ties in creation order.
	assert.Equal(t, uint(1), all[0].ID)
	assert.Equal(t, uint(2), all[1].ID)
	assert.Equal(t, uint(3), all[2].ID)

	first := Match(msg, ruleSet, FirstMatch)
	require.Len(t, first, 1)
	assert.Equal(t, uint(1), first[0].ID)
}

func TestMatchSkipsInactiveRules(t *testing.T) {
	active := rule(1, 10, cond(models.FieldSubject, models.OpContains, "report"))
	disabled := rule(2, 20, cond(models.FieldSubject, models.OpContains, "report"))
	disabled.IsActive = false

	matched := Match(mailsource.Message{Subject: "quarterly report"}, []models.Rule{active, disabled}, FirstMatch)
	require.Len(t, matched, 1)
	assert.Equal(t, uint(1), matched[0].ID)
}

func TestMatchDoesNotReorderInput(t *testing.T) {
	ruleSet := []models.Rule{rule(1, 1), rule(2, 2)}
	Match(mailsource.Message{}, ruleSet, AllMatches)
	assert.Equal(t, uint(1), ruleSet[0].ID)
	assert.Equal(t, uint(2), ruleSet[1].ID)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("first-match")
	require.NoError(t, err)
	assert.Equal(t, FirstMatch, m)

	m, err = ParseMode("all-matches")
	require.NoError(t, err)
	assert.Equal(t, AllMatches, m)

	_, err = ParseMode("best-match")
	assert.Error(t, err)
}
