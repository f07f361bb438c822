// Package rules evaluates inbound messages against a user's prioritized
// rule set.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"mailrules/mailsource"
	"mailrules/models"
)

// Mode controls how many matching rules a single message may trigger.
type Mode int

const (
	// FirstMatch stops at the highest-priority matching rule.
	FirstMatch Mode = iota
	// AllMatches returns every matching rule, each triggering its
	// actions independently.
	AllMatches
)

// ParseMode maps the deployment config value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "first-match":
		return FirstMatch, nil
	case "all-matches":
		return AllMatches, nil
	default:
		return AllMatches, fmt.Errorf("unknown monitor mode %q", s)
	}
}

// Match returns the rules the message triggers, in evaluation order:
// priority descending, ties kept in creation order. A rule matches when
// every one of its conditions holds; a rule with no conditions matches
// every message.
func Match(msg mailsource.Message, ruleSet []models.Rule, mode Mode) []models.Rule {
	ordered := make([]models.Rule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	var matched []models.Rule
	for _, rule := range ordered {
		if !rule.IsActive {
			continue
		}
		if Matches(msg, rule) {
			matched = append(matched, rule)
			if mode == FirstMatch {
				break
			}
		}
	}
	return matched
}

// Matches reports whether every condition of the rule holds for the
// message.
func Matches(msg mailsource.Message, rule models.Rule) bool {
	for _, cond := range rule.Conditions {
		if !evaluate(cond, msg) {
			return false
		}
	}
	return true
}

// evaluate applies one condition. A condition over an empty or absent
// message field never matches, whatever the operator.
func evaluate(cond models.RuleCondition, msg mailsource.Message) bool {
	value := fieldValue(cond.Field, msg)
	if value == "" {
		return false
	}

	haystack := strings.ToLower(value)
	needle := strings.ToLower(cond.Value)

	switch cond.Operator {
	case models.OpContains:
		return strings.Contains(haystack, needle)
	case models.OpEquals:
		return haystack == needle
	case models.OpStartsWith:
		return strings.HasPrefix(haystack, needle)
	case models.OpEndsWith:
		return strings.HasSuffix(haystack, needle)
	case models.OpMatches:
		re, err := regexp.Compile("(?i)" + cond.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return false
	}
}

func fieldValue(field string, msg mailsource.Message) string {
	switch field {
	case models.FieldFrom:
		return msg.From
	case models.FieldTo:
		return msg.To
	case models.FieldSubject:
		return msg.Subject
	case models.FieldBody:
		return msg.Body
	default:
		return ""
	}
}
