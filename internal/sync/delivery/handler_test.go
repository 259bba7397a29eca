package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	"leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncUsecase struct {
	results   []*usecase.AccountSyncResult
	lastForce bool
	calls     int
}

func (f *fakeSyncUsecase) SyncTenant(ctx context.Context, orgID string, force bool) []*usecase.AccountSyncResult {
	f.calls++
	f.lastForce = force
	return f.results
}

func (f *fakeSyncUsecase) SyncAccount(ctx context.Context, orgID, accountID string) (*usecase.AccountSyncResult, error) {
	return nil, nil
}

func newTestRouter(uc usecase.SyncUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		AutoSyncTimeout:   time.Minute,
		ManualSyncTimeout: 5 * time.Minute,
	}
	h := NewSyncHandler(uc, cfg)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("orgID", "org-1") })
	r.POST("/sync/auto", h.AutoSync)
	r.POST("/sync/manual", h.ManualSync)
	return r
}

func TestAutoSyncAggregatesByKind(t *testing.T) {
	uc := &fakeSyncUsecase{results: []*usecase.AccountSyncResult{
		{Kind: accountdomain.KindEmail, Success: true, NewMessages: 2, NewThreads: 1},
		{Kind: accountdomain.KindEmail, Skipped: true, SkipReason: "recently_synced"},
		{Kind: accountdomain.KindCalendar, Success: true, NewEvents: 3},
	}}
	router := newTestRouter(uc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/auto", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Email    mailSummary     `json:"email"`
		Calendar calendarSummary `json:"calendar"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, mailSummary{Synced: 1, NewMessages: 2, NewThreads: 1}, body.Email)
	assert.Equal(t, calendarSummary{Synced: 1, NewEvents: 3}, body.Calendar)
	assert.False(t, uc.lastForce)
}

func TestManualSyncReadsForceFromBody(t *testing.T) {
	uc := &fakeSyncUsecase{}
	router := newTestRouter(uc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/manual", strings.NewReader(`{"force": true}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, uc.lastForce)

	// Without a body the sync still runs, just without force.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sync/manual", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, uc.lastForce)
	assert.Equal(t, 2, uc.calls)
}
