package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Lead categories produced by classification.
const (
	CategoryHotLead         = "hot_lead"
	CategoryWarmLead        = "warm_lead"
	CategoryColdLead        = "cold_lead"
	CategoryCustomerSupport = "customer_support"
	CategoryVendor          = "vendor"
	CategoryNewsletter      = "newsletter"
	CategorySpam            = "spam"
	CategoryGeneralInquiry  = "general_inquiry"
)

// categorySynonyms maps the label variants models actually emit onto the
// canonical set. Unknown labels fall back to general_inquiry rather than
// failing the whole classification.
var categorySynonyms = map[string]string{
	"hot":              CategoryHotLead,
	"hot lead":         CategoryHotLead,
	"warm":             CategoryWarmLead,
	"warm lead":        CategoryWarmLead,
	"cold":             CategoryColdLead,
	"cold lead":        CategoryColdLead,
	"support":          CategoryCustomerSupport,
	"customer support": CategoryCustomerSupport,
	"supplier":         CategoryVendor,
	"marketing":        CategoryNewsletter,
	"promotional":      CategoryNewsletter,
	"junk":             CategorySpam,
	"inquiry":          CategoryGeneralInquiry,
	"general":          CategoryGeneralInquiry,
	"other":            CategoryGeneralInquiry,
}

var canonicalCategories = map[string]bool{
	CategoryHotLead:         true,
	CategoryWarmLead:        true,
	CategoryColdLead:        true,
	CategoryCustomerSupport: true,
	CategoryVendor:          true,
	CategoryNewsletter:      true,
	CategorySpam:            true,
	CategoryGeneralInquiry:  true,
}

// NormalizeCategory maps a raw model label to a canonical category.
func NormalizeCategory(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	label = strings.ReplaceAll(label, "-", "_")
	if canonicalCategories[label] {
		return label
	}
	if mapped, ok := categorySynonyms[strings.ReplaceAll(label, "_", " ")]; ok {
		return mapped
	}
	if mapped, ok := categorySynonyms[label]; ok {
		return mapped
	}
	return CategoryGeneralInquiry
}

// IntelligenceRecord is the classification verdict for one message. At most
// one record exists per message; re-classification returns the stored record
// without another model call.
type IntelligenceRecord struct {
	ID      string `json:"id" gorm:"primaryKey"`
	OrgID   string `json:"org_id" gorm:"uniqueIndex:idx_intel_email;not null"`
	EmailID string `json:"email_id" gorm:"uniqueIndex:idx_intel_email;not null"`

	Category string `json:"category"`

	// Integer scores are 0-100.
	PriorityScore   int `json:"priority_score"`
	LeadScore       int `json:"lead_score"`
	OverallScore    int `json:"overall_score"`
	UrgencyScore    int `json:"urgency_score"`
	EngagementScore int `json:"engagement_score"`

	// Ratio scores are 0.0-1.0.
	ConfidenceScore       float64 `json:"confidence_score"`
	SentimentScore        float64 `json:"sentiment_score"`
	ConversionProbability float64 `json:"conversion_probability"`

	ActionRequired bool   `json:"action_required"`
	Summary        string `json:"summary"`
	KeyEntities    string `json:"key_entities,omitempty" gorm:"type:text"`

	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProcessingQueueItem marks a high-signal record for downstream workflows
// (CRM push, enrichment). Sync and classification only ever enqueue.
type ProcessingQueueItem struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	OrgID     string    `json:"org_id" gorm:"index;not null"`
	EmailID   string    `json:"email_id" gorm:"index;not null"`
	RecordID  string    `json:"record_id"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status" gorm:"default:pending"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue item statuses.
const (
	QueueStatusPending = "pending"
	QueueStatusDone    = "done"
)

// Classification failure modes, mapped to HTTP statuses at the delivery edge.
var (
	ErrNotFound         = errors.New("email not found")
	ErrNoContent        = errors.New("email has no classifiable content")
	ErrModelUnavailable = errors.New("no classification model available")
)

// MalformedResponseError wraps model output that could not be parsed into a
// verdict. Nothing is persisted for these.
type MalformedResponseError struct {
	Output string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
