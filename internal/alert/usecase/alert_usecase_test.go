package usecase

import (
	"context"
	"testing"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	"leadpulse-backend/internal/alert/domain"
	intelidomain "leadpulse-backend/internal/intelligence/domain"
	syncdomain "leadpulse-backend/internal/sync/domain"
	"leadpulse-backend/pkg/fcm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifRepo struct {
	notifications []*domain.Notification
}

func (r *fakeNotifRepo) ExistsRecent(orgID, rule, leadRef string, since time.Time) (bool, error) {
	for _, n := range r.notifications {
		if n.OrgID == orgID && n.Rule == rule && n.LeadRef == leadRef && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeNotifRepo) Create(n *domain.Notification) error {
	n.ID = uuid.New().String()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *fakeNotifRepo) FindByOrgID(orgID string, limit int) ([]*domain.Notification, error) {
	return r.notifications, nil
}

type fakeIntelRepo struct {
	records []*intelidomain.IntelligenceRecord
}

func (r *fakeIntelRepo) FindByEmailID(orgID, emailID string) (*intelidomain.IntelligenceRecord, error) {
	for _, rec := range r.records {
		if rec.OrgID == orgID && rec.EmailID == emailID {
			return rec, nil
		}
	}
	return nil, nil
}

func (r *fakeIntelRepo) FindSince(orgID string, since time.Time) ([]*intelidomain.IntelligenceRecord, error) {
	var out []*intelidomain.IntelligenceRecord
	for _, rec := range r.records {
		if rec.OrgID == orgID && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeIntelRepo) Create(rec *intelidomain.IntelligenceRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type fakeMessageRepo struct {
	messages map[string]*syncdomain.Message
}

func newFakeMessageRepo(messages ...*syncdomain.Message) *fakeMessageRepo {
	repo := &fakeMessageRepo{messages: make(map[string]*syncdomain.Message)}
	for _, m := range messages {
		repo.messages[m.OrgID+"|"+m.ID] = m
	}
	return repo
}

func (r *fakeMessageRepo) FindByProviderID(orgID, providerMessageID string) (*syncdomain.Message, error) {
	return nil, nil
}

func (r *fakeMessageRepo) FindByID(orgID, id string) (*syncdomain.Message, error) {
	return r.messages[orgID+"|"+id], nil
}

func (r *fakeMessageRepo) Create(m *syncdomain.Message) error { return nil }

type fakeDeviceRepo struct {
	tokens  []*accountdomain.DeviceToken
	deleted []string
}

func (r *fakeDeviceRepo) FindByOrgID(orgID string) ([]*accountdomain.DeviceToken, error) {
	return r.tokens, nil
}

func (r *fakeDeviceRepo) Register(t *accountdomain.DeviceToken) error { return nil }

func (r *fakeDeviceRepo) DeleteByToken(token string) error {
	r.deleted = append(r.deleted, token)
	return nil
}

type fakePusher struct {
	pushes []fcm.AlertPush
	failed []string
}

func (p *fakePusher) SendToDevices(ctx context.Context, tokens []string, push fcm.AlertPush) ([]string, error) {
	p.pushes = append(p.pushes, push)
	return p.failed, nil
}

// Fixtures.

func testRecord(orgID, emailID string) *intelidomain.IntelligenceRecord {
	return &intelidomain.IntelligenceRecord{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		EmailID:   emailID,
		Category:  intelidomain.CategoryWarmLead,
		CreatedAt: time.Now(),
	}
}

func testMessage(orgID, id string) *syncdomain.Message {
	return &syncdomain.Message{
		ID:       id,
		OrgID:    orgID,
		FromAddr: "lead@prospect.com",
		FromName: "Lead",
		IsRead:   false,
	}
}

type fixture struct {
	notifRepo   *fakeNotifRepo
	intelRepo   *fakeIntelRepo
	messageRepo *fakeMessageRepo
	deviceRepo  *fakeDeviceRepo
	pusher      *fakePusher
	uc          AlertUsecase
}

func newFixture(messages ...*syncdomain.Message) *fixture {
	f := &fixture{
		notifRepo:   &fakeNotifRepo{},
		intelRepo:   &fakeIntelRepo{},
		messageRepo: newFakeMessageRepo(messages...),
		deviceRepo:  &fakeDeviceRepo{},
		pusher:      &fakePusher{},
	}
	f.uc = NewAlertUsecase(f.notifRepo, f.intelRepo, f.messageRepo, f.deviceRepo, f.pusher, 6*time.Hour, 24*time.Hour)
	return f
}

func TestHighScoreRuleFires(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.OverallScore = 85

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.RuleHighScore, fired[0].Rule)
	assert.Equal(t, "lead@prospect.com", fired[0].LeadRef)
	assert.Equal(t, domain.PriorityHigh, fired[0].Priority)
}

func TestNoRulesBelowThresholds(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.OverallScore = 79
	record.ConversionProbability = 0.79
	record.UrgencyScore = 79
	record.EngagementScore = 84

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestMultipleRulesFireIndependently(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.OverallScore = 90
	record.ConversionProbability = 0.9
	record.UrgencyScore = 90
	record.EngagementScore = 90

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	assert.Len(t, fired, 4)
}

func TestDedupWithinWindow(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"), testMessage("org-1", "e2"))
	first := testRecord("org-1", "e1")
	first.OverallScore = 85

	fired, err := f.uc.Evaluate(context.Background(), "org-1", first, EvalRequest{})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	// A second high score from the same lead inside the window is silent.
	second := testRecord("org-1", "e2")
	second.OverallScore = 95
	fired, err = f.uc.Evaluate(context.Background(), "org-1", second, EvalRequest{})
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Len(t, f.notifRepo.notifications, 1)
}

func TestDedupExpiresAfterWindow(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	// An alert from 7 hours ago no longer suppresses.
	f.notifRepo.notifications = append(f.notifRepo.notifications, &domain.Notification{
		OrgID:     "org-1",
		Rule:      domain.RuleHighScore,
		LeadRef:   "lead@prospect.com",
		CreatedAt: time.Now().Add(-7 * time.Hour),
	})

	record := testRecord("org-1", "e1")
	record.OverallScore = 85
	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	assert.Len(t, fired, 1)
}

func TestActionRequiredOnlyFiresWhileUnread(t *testing.T) {
	message := testMessage("org-1", "e1")
	message.IsRead = true
	f := newFixture(message)

	record := testRecord("org-1", "e1")
	record.ActionRequired = true

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	assert.Empty(t, fired)

	message.IsRead = false
	fired, err = f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.RuleActionRequired, fired[0].Rule)
	assert.Equal(t, domain.PriorityHigh, fired[0].Priority)
}

func TestRuleSelectionNarrowsEvaluation(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.OverallScore = 90
	record.UrgencyScore = 90

	// Both high_score and urgent_lead would fire, but only the selected
	// rule runs.
	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Rule: domain.RuleUrgentLead})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.RuleUrgentLead, fired[0].Rule)
}

func TestRuleThresholdOverride(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.OverallScore = 65

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Rule: domain.RuleHighScore})
	require.NoError(t, err)
	assert.Empty(t, fired)

	threshold := 60.0
	fired, err = f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Rule: domain.RuleHighScore, Threshold: &threshold})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.RuleHighScore, fired[0].Rule)
}

func TestUnknownRuleRejected(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")

	_, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Rule: "lottery_winner"})
	assert.Error(t, err)
}

func TestContainsConditionOnTextFields(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.Category = intelidomain.CategoryHotLead
	record.Summary = "Enterprise buyer ready to purchase."
	record.KeyEntities = `["Acme Corp"]`

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "category", Operator: "contains", Text: "hot"},
		{Field: "summary", Operator: "contains", Text: "ENTERPRISE"},
		{Field: "keyEntities", Operator: "contains", Text: "acme"},
	}})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "custom", fired[0].Rule)

	// A non-matching clause vetoes like any other condition.
	f2 := newFixture(testMessage("org-1", "e1"))
	fired, err = f2.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "category", Operator: "contains", Text: "newsletter"},
	}})
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestCustomConditionsAllMustHold(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")
	record.LeadScore = 70
	record.SentimentScore = 0.9

	conditions := []domain.Condition{
		{Field: "leadScore", Operator: "gte", Value: 60},
		{Field: "sentimentScore", Operator: "gt", Value: 0.8},
	}
	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: conditions})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "custom", fired[0].Rule)

	// One failing clause vetoes the alert.
	f2 := newFixture(testMessage("org-1", "e1"))
	record.LeadScore = 50
	fired, err = f2.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: conditions})
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestInvalidConditionRejected(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	record := testRecord("org-1", "e1")

	_, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "notAField", Operator: "gte", Value: 1},
	}})
	assert.Error(t, err)

	_, err = f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "leadScore", Operator: "between", Value: 1},
	}})
	assert.Error(t, err)

	// contains only applies to text fields and needs a search string.
	_, err = f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "leadScore", Operator: "contains", Text: "hot"},
	}})
	assert.Error(t, err)

	_, err = f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{Conditions: []domain.Condition{
		{Field: "category", Operator: "contains"},
	}})
	assert.Error(t, err)
}

func TestConditionOperators(t *testing.T) {
	cases := []struct {
		op    string
		value float64
		input float64
		want  bool
	}{
		{"gte", 50, 50, true},
		{"gte", 50, 49, false},
		{"lte", 50, 50, true},
		{"lte", 50, 51, false},
		{"gt", 50, 51, true},
		{"gt", 50, 50, false},
		{"lt", 50, 49, true},
		{"lt", 50, 50, false},
		{"eq", 50, 50, true},
		{"eq", 50, 49, false},
	}
	for _, c := range cases {
		cond := domain.Condition{Field: "leadScore", Operator: c.op, Value: c.value}
		assert.Equal(t, c.want, cond.Holds(c.input), "%s %v vs %v", c.op, c.value, c.input)
	}
}

func TestHighPriorityAlertPushesToDevices(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	f.deviceRepo.tokens = []*accountdomain.DeviceToken{
		{Token: "device-token-aaaaaaaaaaaaaaaaaaaa"},
		{Token: "device-token-bbbbbbbbbbbbbbbbbbbb"},
	}
	f.pusher.failed = []string{"device-token-bbbbbbbbbbbbbbbbbbbb"}

	record := testRecord("org-1", "e1")
	record.OverallScore = 85

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	require.Len(t, fired, 1)

	require.Len(t, f.pusher.pushes, 1)
	assert.Equal(t, domain.RuleHighScore, f.pusher.pushes[0].Data["rule"])

	// Bounced tokens get pruned.
	assert.Equal(t, []string{"device-token-bbbbbbbbbbbbbbbbbbbb"}, f.deviceRepo.deleted)
}

func TestMediumPriorityAlertDoesNotPush(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))
	f.deviceRepo.tokens = []*accountdomain.DeviceToken{{Token: "device-token"}}

	record := testRecord("org-1", "e1")
	record.EngagementScore = 90

	fired, err := f.uc.Evaluate(context.Background(), "org-1", record, EvalRequest{})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, domain.PriorityMedium, fired[0].Priority)
	assert.Empty(t, f.pusher.pushes)
}

func TestEvaluateByEmailWithoutRecord(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"))

	_, err := f.uc.EvaluateByEmail(context.Background(), "org-1", "e1", EvalRequest{})
	assert.ErrorIs(t, err, intelidomain.ErrNotFound)
}

func TestEvaluateBatchCoversWindow(t *testing.T) {
	f := newFixture(testMessage("org-1", "e1"), testMessage("org-1", "e2"), testMessage("org-1", "e3"))

	inWindow := testRecord("org-1", "e1")
	inWindow.OverallScore = 85
	quiet := testRecord("org-1", "e2")
	stale := testRecord("org-1", "e3")
	stale.OverallScore = 95
	stale.CreatedAt = time.Now().Add(-25 * time.Hour)
	f.intelRepo.records = []*intelidomain.IntelligenceRecord{inWindow, quiet, stale}

	result, err := f.uc.EvaluateBatch(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsEvaluated)
	assert.Equal(t, 1, result.AlertsFired)
}
