package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"leadpulse-backend/internal/intelligence/domain"
	"leadpulse-backend/internal/intelligence/repository"
	syncdomain "leadpulse-backend/internal/sync/domain"
	syncrepo "leadpulse-backend/internal/sync/repository"
	"leadpulse-backend/pkg/ai"
)

// Queue admission thresholds. Records at or above the priority bar, and all
// hot leads regardless of score, go to the processing queue.
const queuePriorityThreshold = 80

// AlertSink receives freshly created records for alert evaluation. Evaluation
// runs out of band; classification never waits on it.
type AlertSink interface {
	EvaluateAsync(orgID string, record *domain.IntelligenceRecord)
}

// IntelligenceUsecase classifies stored emails into lead verdicts.
type IntelligenceUsecase interface {
	// Classify returns the verdict for an email, calling the model at most
	// once per email ever. A stored record short-circuits the model.
	Classify(ctx context.Context, orgID, emailID string) (*domain.IntelligenceRecord, error)

	// ClassifyAsync is the fire-and-forget entry point used by sync.
	ClassifyAsync(orgID, emailID string)
}

type intelligenceUsecase struct {
	intelRepo   repository.IntelligenceRepository
	queueRepo   repository.QueueRepository
	messageRepo syncrepo.MessageRepository
	completer   ai.Completer
	alerts      AlertSink
}

func NewIntelligenceUsecase(
	intelRepo repository.IntelligenceRepository,
	queueRepo repository.QueueRepository,
	messageRepo syncrepo.MessageRepository,
	completer ai.Completer,
	alerts AlertSink,
) IntelligenceUsecase {
	return &intelligenceUsecase{
		intelRepo:   intelRepo,
		queueRepo:   queueRepo,
		messageRepo: messageRepo,
		completer:   completer,
		alerts:      alerts,
	}
}

func (u *intelligenceUsecase) ClassifyAsync(orgID, emailID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := u.Classify(ctx, orgID, emailID); err != nil {
			log.Printf("[Intelligence] Background classification failed for email %s: %v", emailID, err)
		}
	}()
}

func (u *intelligenceUsecase) Classify(ctx context.Context, orgID, emailID string) (*domain.IntelligenceRecord, error) {
	existing, err := u.intelRepo.FindByEmailID(orgID, emailID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	message, err := u.messageRepo.FindByID(orgID, emailID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, domain.ErrNotFound
	}
	if strings.TrimSpace(message.Subject) == "" && strings.TrimSpace(message.Body) == "" && strings.TrimSpace(message.Snippet) == "" {
		return nil, domain.ErrNoContent
	}

	if u.completer == nil {
		return nil, domain.ErrModelUnavailable
	}

	output, err := u.completer.Complete(ctx, buildClassifyPrompt(message))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	verdict, err := parseVerdict(output)
	if err != nil {
		return nil, err
	}

	record := verdict.toRecord(orgID, emailID, u.completer.Model())
	if err := u.intelRepo.Create(record); err != nil {
		// A concurrent classification may have won the unique index race;
		// treat the stored record as the verdict.
		if stored, findErr := u.intelRepo.FindByEmailID(orgID, emailID); findErr == nil && stored != nil {
			return stored, nil
		}
		return nil, err
	}

	u.enqueueIfHighSignal(record)
	if u.alerts != nil {
		u.alerts.EvaluateAsync(orgID, record)
	}
	return record, nil
}

func (u *intelligenceUsecase) enqueueIfHighSignal(record *domain.IntelligenceRecord) {
	if record.PriorityScore < queuePriorityThreshold && record.Category != domain.CategoryHotLead {
		return
	}
	reason := "high_priority"
	if record.Category == domain.CategoryHotLead {
		reason = "hot_lead"
	}
	err := u.queueRepo.Enqueue(&domain.ProcessingQueueItem{
		OrgID:    record.OrgID,
		EmailID:  record.EmailID,
		RecordID: record.ID,
		Reason:   reason,
	})
	if err != nil {
		log.Printf("[Intelligence] Failed to enqueue record %s: %v", record.ID, err)
	}
}

func buildClassifyPrompt(message *syncdomain.Message) string {
	body := message.Body
	if len(body) > 4000 {
		body = body[:4000]
	}
	if strings.TrimSpace(body) == "" {
		body = message.Snippet
	}

	return fmt.Sprintf(`You are a sales intelligence assistant. Classify the email below and respond with ONLY a JSON object, no prose, no markdown.

JSON fields:
- "category": one of hot_lead, warm_lead, cold_lead, customer_support, vendor, newsletter, spam, general_inquiry
- "priority_score": integer 0-100, how urgently a sales rep should look at this
- "lead_score": integer 0-100, quality of this contact as a lead
- "overall_score": integer 0-100, combined signal strength
- "urgency_score": integer 0-100, time pressure expressed in the email
- "engagement_score": integer 0-100, sender engagement level
- "confidence_score": number 0.0-1.0, your confidence in this classification
- "sentiment_score": number 0.0-1.0, sender sentiment (0 negative, 1 positive)
- "conversion_probability": number 0.0-1.0, likelihood this converts to a deal
- "action_required": boolean, whether the recipient must respond
- "summary": one sentence summary
- "key_entities": array of company, product, and person names mentioned

FROM: %s <%s>
SUBJECT: %s
BODY:
%s`, message.FromName, message.FromAddr, message.Subject, body)
}

// verdict is the wire shape expected back from the model.
type verdict struct {
	Category              string   `json:"category"`
	PriorityScore         int      `json:"priority_score"`
	LeadScore             int      `json:"lead_score"`
	OverallScore          int      `json:"overall_score"`
	UrgencyScore          int      `json:"urgency_score"`
	EngagementScore       int      `json:"engagement_score"`
	ConfidenceScore       float64  `json:"confidence_score"`
	SentimentScore        float64  `json:"sentiment_score"`
	ConversionProbability float64  `json:"conversion_probability"`
	ActionRequired        bool     `json:"action_required"`
	Summary               string   `json:"summary"`
	KeyEntities           []string `json:"key_entities"`
}

func (v *verdict) toRecord(orgID, emailID, model string) *domain.IntelligenceRecord {
	record := &domain.IntelligenceRecord{
		OrgID:                 orgID,
		EmailID:               emailID,
		Category:              domain.NormalizeCategory(v.Category),
		PriorityScore:         clampInt(v.PriorityScore),
		LeadScore:             clampInt(v.LeadScore),
		OverallScore:          clampInt(v.OverallScore),
		UrgencyScore:          clampInt(v.UrgencyScore),
		EngagementScore:       clampInt(v.EngagementScore),
		ConfidenceScore:       clampRatio(v.ConfidenceScore),
		SentimentScore:        clampRatio(v.SentimentScore),
		ConversionProbability: clampRatio(v.ConversionProbability),
		ActionRequired:        v.ActionRequired,
		Summary:               v.Summary,
		Model:                 model,
	}
	if len(v.KeyEntities) > 0 {
		if raw, err := json.Marshal(v.KeyEntities); err == nil {
			record.KeyEntities = string(raw)
		}
	}
	return record
}

// parseVerdict extracts the JSON object from model output. Models routinely
// wrap JSON in markdown fences or add chatter around it, so the parser
// locates the outermost braces before unmarshalling.
func parseVerdict(output string) (*verdict, error) {
	cleaned := strings.TrimSpace(output)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, &domain.MalformedResponseError{Output: output, Err: fmt.Errorf("no JSON object in output")}
	}

	var v verdict
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &v); err != nil {
		return nil, &domain.MalformedResponseError{Output: output, Err: err}
	}
	if v.Category == "" {
		return nil, &domain.MalformedResponseError{Output: output, Err: fmt.Errorf("missing category field")}
	}
	return &v, nil
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
