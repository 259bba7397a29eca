package delivery

import (
	"context"
	"net/http"
	"time"

	accountdomain "leadpulse-backend/internal/account/domain"
	"leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	syncUsecase usecase.SyncUsecase
	cfg         *config.Config
}

func NewSyncHandler(syncUsecase usecase.SyncUsecase, cfg *config.Config) *SyncHandler {
	return &SyncHandler{
		syncUsecase: syncUsecase,
		cfg:         cfg,
	}
}

type mailSummary struct {
	Synced      int `json:"synced"`
	NewMessages int `json:"newMessages"`
	NewThreads  int `json:"newThreads"`
}

type calendarSummary struct {
	Synced    int `json:"synced"`
	NewEvents int `json:"newEvents"`
}

func summarize(results []*usecase.AccountSyncResult) (mailSummary, calendarSummary) {
	var email mailSummary
	var calendar calendarSummary
	for _, r := range results {
		if r.Kind == accountdomain.KindCalendar {
			if r.Success {
				calendar.Synced++
			}
			calendar.NewEvents += r.NewEvents
			continue
		}
		if r.Success {
			email.Synced++
		}
		email.NewMessages += r.NewMessages
		email.NewThreads += r.NewThreads
	}
	return email, calendar
}

type manualSyncRequest struct {
	Force bool `json:"force"`
}

// AutoSync runs a time-boxed sync pass for the caller's org, honoring
// per-account freshness cooldowns. Accounts the deadline cuts off come back
// as skipped; their progress up to that point is already stored.
func (h *SyncHandler) AutoSync(c *gin.Context) {
	h.runSync(c, h.cfg.AutoSyncTimeout, false)
}

// ManualSync allows a longer deadline and, with {"force": true}, bypasses
// freshness cooldowns. Intended for operator-triggered refreshes.
func (h *SyncHandler) ManualSync(c *gin.Context) {
	var req manualSyncRequest
	// An empty body is a plain manual sync without force.
	_ = c.ShouldBindJSON(&req)
	h.runSync(c, h.cfg.ManualSyncTimeout, req.Force)
}

func (h *SyncHandler) runSync(c *gin.Context, timeout time.Duration, force bool) {
	orgID := c.GetString("orgID")

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	start := time.Now()
	results := h.syncUsecase.SyncTenant(ctx, orgID, force)
	email, calendar := summarize(results)

	c.JSON(http.StatusOK, gin.H{
		"email":       email,
		"calendar":    calendar,
		"results":     results,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
