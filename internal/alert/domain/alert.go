package domain

import (
	"fmt"
	"strings"
	"time"
)

// Built-in alert rule names.
const (
	RuleHighScore       = "high_score"
	RuleHighConversion  = "high_conversion"
	RuleUrgentLead      = "urgent_lead"
	RuleEngagementSpike = "engagement_spike"
	RuleActionRequired  = "action_required"
)

// KnownRule reports whether rule names a built-in rule.
func KnownRule(rule string) bool {
	switch rule {
	case RuleHighScore, RuleHighConversion, RuleUrgentLead, RuleEngagementSpike, RuleActionRequired:
		return true
	}
	return false
}

// Alert priorities. High-priority alerts additionally go out as push
// notifications; medium ones only persist.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// Notification is one triggered alert. LeadRef is the dedup key component:
// (org, rule, lead_ref) fires at most once per dedup window.
type Notification struct {
	ID       string `json:"id" gorm:"primaryKey"`
	OrgID    string `json:"org_id" gorm:"index:idx_notif_dedup;not null"`
	Rule     string `json:"rule" gorm:"index:idx_notif_dedup;not null"`
	LeadRef  string `json:"lead_ref" gorm:"index:idx_notif_dedup;not null"`
	EmailID  string `json:"email_id"`
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Body     string `json:"body"`

	CreatedAt time.Time `json:"created_at"`
}

// Condition is one user-supplied trigger clause. Numeric operators compare
// Value against a record metric; the contains operator searches Text within a
// record's string fields. All conditions of a request must hold for the alert
// to fire.
type Condition struct {
	Field    string  `json:"field"`
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
	Text     string  `json:"text"`
}

// Validate rejects unknown fields and operators up front so a bad request
// fails fast instead of silently never firing.
func (c Condition) Validate() error {
	switch c.Operator {
	case "gte", "lte", "gt", "lt", "eq":
		if !numericFields[c.Field] {
			return fmt.Errorf("unknown condition field %q", c.Field)
		}
		return nil
	case "contains":
		if !stringFields[c.Field] {
			return fmt.Errorf("operator contains needs a text field, got %q", c.Field)
		}
		if c.Text == "" {
			return fmt.Errorf("operator contains needs a non-empty text value")
		}
		return nil
	default:
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}
}

// IsTextual reports whether the condition evaluates against a string field.
func (c Condition) IsTextual() bool {
	return c.Operator == "contains"
}

var numericFields = map[string]bool{
	"overallScore":          true,
	"priorityScore":         true,
	"leadScore":             true,
	"urgencyScore":          true,
	"engagementScore":       true,
	"conversionProbability": true,
	"confidenceScore":       true,
	"sentimentScore":        true,
}

var stringFields = map[string]bool{
	"category":    true,
	"summary":     true,
	"keyEntities": true,
}

// Holds evaluates a numeric condition against a metric value.
func (c Condition) Holds(value float64) bool {
	switch c.Operator {
	case "gte":
		return value >= c.Value
	case "lte":
		return value <= c.Value
	case "gt":
		return value > c.Value
	case "lt":
		return value < c.Value
	case "eq":
		return value == c.Value
	default:
		return false
	}
}

// HoldsText evaluates a contains condition, case-insensitively.
func (c Condition) HoldsText(value string) bool {
	if c.Operator != "contains" {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(c.Text))
}
