package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	accountrepo "leadpulse-backend/internal/account/repository"
	"leadpulse-backend/internal/alert/domain"
	"leadpulse-backend/internal/alert/repository"
	intelidomain "leadpulse-backend/internal/intelligence/domain"
	intelirepo "leadpulse-backend/internal/intelligence/repository"
	syncrepo "leadpulse-backend/internal/sync/repository"
	"leadpulse-backend/pkg/fcm"
)

// Built-in rule thresholds.
const (
	highScoreThreshold       = 80
	highConversionThreshold  = 0.8
	urgentLeadThreshold      = 80
	engagementSpikeThreshold = 85
)

// Pusher delivers alert pushes and reports tokens that bounced.
type Pusher interface {
	SendToDevices(ctx context.Context, tokens []string, push fcm.AlertPush) ([]string, error)
}

// BatchResult summarizes one batch evaluation run.
type BatchResult struct {
	RecordsEvaluated int `json:"records_evaluated"`
	AlertsFired      int `json:"alerts_fired"`
}

// EvalRequest narrows one evaluation run. A zero value runs every built-in
// rule at its default threshold. Rule selects a single built-in rule, and
// Threshold, when set, overrides that rule's default cut-off. Conditions are
// caller-supplied clauses that must all hold for a custom alert to fire.
type EvalRequest struct {
	Rule       string
	Threshold  *float64
	Conditions []domain.Condition
}

// AlertUsecase evaluates classification records against alert rules.
type AlertUsecase interface {
	// Evaluate runs the requested rules against a record and returns the
	// alerts that fired (after dedup).
	Evaluate(ctx context.Context, orgID string, record *intelidomain.IntelligenceRecord, req EvalRequest) ([]*domain.Notification, error)

	// EvaluateByEmail resolves a record by email id and evaluates it.
	EvaluateByEmail(ctx context.Context, orgID, emailID string, req EvalRequest) ([]*domain.Notification, error)

	// EvaluateBatch evaluates every record classified within the batch
	// window against the built-in rules.
	EvaluateBatch(ctx context.Context, orgID string) (*BatchResult, error)

	// EvaluateAsync is the fire-and-forget hook called after classification.
	EvaluateAsync(orgID string, record *intelidomain.IntelligenceRecord)
}

type alertUsecase struct {
	notifRepo   repository.NotificationRepository
	intelRepo   intelirepo.IntelligenceRepository
	messageRepo syncrepo.MessageRepository
	deviceRepo  accountrepo.DeviceTokenRepository
	pusher      Pusher

	dedupWindow time.Duration
	batchWindow time.Duration
}

func NewAlertUsecase(
	notifRepo repository.NotificationRepository,
	intelRepo intelirepo.IntelligenceRepository,
	messageRepo syncrepo.MessageRepository,
	deviceRepo accountrepo.DeviceTokenRepository,
	pusher Pusher,
	dedupWindow, batchWindow time.Duration,
) AlertUsecase {
	return &alertUsecase{
		notifRepo:   notifRepo,
		intelRepo:   intelRepo,
		messageRepo: messageRepo,
		deviceRepo:  deviceRepo,
		pusher:      pusher,
		dedupWindow: dedupWindow,
		batchWindow: batchWindow,
	}
}

func (u *alertUsecase) EvaluateAsync(orgID string, record *intelidomain.IntelligenceRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := u.Evaluate(ctx, orgID, record, EvalRequest{}); err != nil {
			log.Printf("[Alert] Background evaluation failed for record %s: %v", record.ID, err)
		}
	}()
}

func (u *alertUsecase) EvaluateByEmail(ctx context.Context, orgID, emailID string, req EvalRequest) ([]*domain.Notification, error) {
	record, err := u.intelRepo.FindByEmailID(orgID, emailID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, intelidomain.ErrNotFound
	}
	return u.Evaluate(ctx, orgID, record, req)
}

func (u *alertUsecase) Evaluate(ctx context.Context, orgID string, record *intelidomain.IntelligenceRecord, req EvalRequest) ([]*domain.Notification, error) {
	if req.Rule != "" && !domain.KnownRule(req.Rule) {
		return nil, fmt.Errorf("unknown alert rule %q", req.Rule)
	}
	for _, c := range req.Conditions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	message, err := u.messageRepo.FindByID(orgID, record.EmailID)
	if err != nil {
		return nil, err
	}
	// The lead is identified by the sender address; without the message the
	// record alone still evaluates, keyed by email id.
	leadRef := record.EmailID
	leadName := ""
	if message != nil {
		leadRef = message.FromAddr
		leadName = message.FromName
		if leadName == "" {
			leadName = message.FromAddr
		}
	}

	var fired []*domain.Notification
	for _, rule := range u.matchedRules(record, message != nil && !message.IsRead, req) {
		notification, err := u.fire(ctx, orgID, rule.name, rule.priority, leadRef, record,
			rule.title(leadName), rule.body(leadName, record))
		if err != nil {
			return fired, err
		}
		if notification != nil {
			fired = append(fired, notification)
		}
	}

	if len(req.Conditions) > 0 && u.conditionsHold(record, req.Conditions) {
		notification, err := u.fire(ctx, orgID, "custom", domain.PriorityMedium, leadRef, record,
			fmt.Sprintf("Custom alert: %s", leadName),
			fmt.Sprintf("%s matched all %d custom conditions", leadName, len(req.Conditions)))
		if err != nil {
			return fired, err
		}
		if notification != nil {
			fired = append(fired, notification)
		}
	}

	return fired, nil
}

type matchedRule struct {
	name     string
	priority string
	title    func(lead string) string
	body     func(lead string, r *intelidomain.IntelligenceRecord) string
}

func (u *alertUsecase) matchedRules(record *intelidomain.IntelligenceRecord, messageUnread bool, req EvalRequest) []matchedRule {
	// An explicit rule selection narrows the run to that rule, and an
	// explicit threshold replaces the rule's default cut-off.
	want := func(rule string) bool { return req.Rule == "" || req.Rule == rule }
	cutoff := func(def float64) float64 {
		if req.Rule != "" && req.Threshold != nil {
			return *req.Threshold
		}
		return def
	}

	var rules []matchedRule

	if want(domain.RuleHighScore) && float64(record.OverallScore) >= cutoff(highScoreThreshold) {
		rules = append(rules, matchedRule{
			name:     domain.RuleHighScore,
			priority: domain.PriorityHigh,
			title:    func(lead string) string { return fmt.Sprintf("High-score lead: %s", lead) },
			body: func(lead string, r *intelidomain.IntelligenceRecord) string {
				return fmt.Sprintf("%s scored %d/100 overall (%s)", lead, r.OverallScore, r.Category)
			},
		})
	}
	if want(domain.RuleHighConversion) && record.ConversionProbability >= cutoff(highConversionThreshold) {
		rules = append(rules, matchedRule{
			name:     domain.RuleHighConversion,
			priority: domain.PriorityHigh,
			title:    func(lead string) string { return fmt.Sprintf("Likely conversion: %s", lead) },
			body: func(lead string, r *intelidomain.IntelligenceRecord) string {
				return fmt.Sprintf("%s has %.0f%% conversion probability", lead, r.ConversionProbability*100)
			},
		})
	}
	if want(domain.RuleUrgentLead) && float64(record.UrgencyScore) >= cutoff(urgentLeadThreshold) {
		rules = append(rules, matchedRule{
			name:     domain.RuleUrgentLead,
			priority: domain.PriorityHigh,
			title:    func(lead string) string { return fmt.Sprintf("Urgent lead: %s", lead) },
			body: func(lead string, r *intelidomain.IntelligenceRecord) string {
				return fmt.Sprintf("%s expressed urgency (score %d/100)", lead, r.UrgencyScore)
			},
		})
	}
	if want(domain.RuleEngagementSpike) && float64(record.EngagementScore) >= cutoff(engagementSpikeThreshold) {
		rules = append(rules, matchedRule{
			name:     domain.RuleEngagementSpike,
			priority: domain.PriorityMedium,
			title:    func(lead string) string { return fmt.Sprintf("Engagement spike: %s", lead) },
			body: func(lead string, r *intelidomain.IntelligenceRecord) string {
				return fmt.Sprintf("%s engagement at %d/100", lead, r.EngagementScore)
			},
		})
	}
	// Only fires while the triggering message is still unread; once someone
	// has read it, the alert would be noise.
	if want(domain.RuleActionRequired) && record.ActionRequired && messageUnread {
		rules = append(rules, matchedRule{
			name:     domain.RuleActionRequired,
			priority: domain.PriorityHigh,
			title:    func(lead string) string { return fmt.Sprintf("Response needed: %s", lead) },
			body: func(lead string, r *intelidomain.IntelligenceRecord) string {
				return fmt.Sprintf("%s is waiting on a reply", lead)
			},
		})
	}
	return rules
}

func (u *alertUsecase) conditionsHold(record *intelidomain.IntelligenceRecord, conditions []domain.Condition) bool {
	for _, c := range conditions {
		if c.IsTextual() {
			if !c.HoldsText(textValue(record, c.Field)) {
				return false
			}
			continue
		}
		if !c.Holds(metricValue(record, c.Field)) {
			return false
		}
	}
	return true
}

func textValue(record *intelidomain.IntelligenceRecord, field string) string {
	switch field {
	case "category":
		return record.Category
	case "summary":
		return record.Summary
	case "keyEntities":
		return record.KeyEntities
	default:
		return ""
	}
}

func metricValue(record *intelidomain.IntelligenceRecord, field string) float64 {
	switch field {
	case "overallScore":
		return float64(record.OverallScore)
	case "priorityScore":
		return float64(record.PriorityScore)
	case "leadScore":
		return float64(record.LeadScore)
	case "urgencyScore":
		return float64(record.UrgencyScore)
	case "engagementScore":
		return float64(record.EngagementScore)
	case "conversionProbability":
		return record.ConversionProbability
	case "confidenceScore":
		return record.ConfidenceScore
	case "sentimentScore":
		return record.SentimentScore
	default:
		return 0
	}
}

// fire persists one alert unless the same (rule, leadRef) fired within the
// dedup window. Returns nil without error when deduplicated.
func (u *alertUsecase) fire(ctx context.Context, orgID, rule, priority, leadRef string, record *intelidomain.IntelligenceRecord, title, body string) (*domain.Notification, error) {
	recent, err := u.notifRepo.ExistsRecent(orgID, rule, leadRef, time.Now().Add(-u.dedupWindow))
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, nil
	}

	notification := &domain.Notification{
		OrgID:    orgID,
		Rule:     rule,
		LeadRef:  leadRef,
		EmailID:  record.EmailID,
		Priority: priority,
		Title:    title,
		Body:     body,
	}
	if err := u.notifRepo.Create(notification); err != nil {
		return nil, err
	}

	if priority == domain.PriorityHigh {
		u.push(ctx, orgID, notification)
	}
	return notification, nil
}

// push sends a high-priority alert to the org's registered devices and prunes
// tokens FCM reports as dead. Push failures never fail the evaluation; the
// notification row is already durable.
func (u *alertUsecase) push(ctx context.Context, orgID string, notification *domain.Notification) {
	if u.pusher == nil || u.deviceRepo == nil {
		return
	}
	devices, err := u.deviceRepo.FindByOrgID(orgID)
	if err != nil {
		log.Printf("[Alert] Failed to load device tokens for org %s: %v", orgID, err)
		return
	}
	if len(devices) == 0 {
		return
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}

	failed, err := u.pusher.SendToDevices(ctx, tokens, fcm.AlertPush{
		Title: notification.Title,
		Body:  notification.Body,
		Data: map[string]string{
			"rule":     notification.Rule,
			"lead_ref": notification.LeadRef,
			"email_id": notification.EmailID,
		},
	})
	if err != nil {
		log.Printf("[Alert] Push failed for org %s: %v", orgID, err)
		return
	}
	for _, token := range failed {
		if err := u.deviceRepo.DeleteByToken(token); err != nil {
			log.Printf("[Alert] Failed to prune dead device token: %v", err)
		}
	}
}

func (u *alertUsecase) EvaluateBatch(ctx context.Context, orgID string) (*BatchResult, error) {
	records, err := u.intelRepo.FindSince(orgID, time.Now().Add(-u.batchWindow))
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		fired, err := u.Evaluate(ctx, orgID, record, EvalRequest{})
		if err != nil {
			log.Printf("[Alert] Batch evaluation failed for record %s: %v", record.ID, err)
			continue
		}
		result.RecordsEvaluated++
		result.AlertsFired += len(fired)
	}
	return result, nil
}
