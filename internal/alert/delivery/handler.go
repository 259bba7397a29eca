package delivery

import (
	"errors"
	"net/http"
	"strconv"

	alertdomain "leadpulse-backend/internal/alert/domain"
	"leadpulse-backend/internal/alert/repository"
	"leadpulse-backend/internal/alert/usecase"
	intelidomain "leadpulse-backend/internal/intelligence/domain"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	alertUsecase usecase.AlertUsecase
	notifRepo    repository.NotificationRepository
}

func NewAlertHandler(alertUsecase usecase.AlertUsecase, notifRepo repository.NotificationRepository) *AlertHandler {
	return &AlertHandler{
		alertUsecase: alertUsecase,
		notifRepo:    notifRepo,
	}
}

type evaluateRequest struct {
	EmailID    string                  `json:"email_id" binding:"required"`
	Type       string                  `json:"type"`
	Threshold  *float64                `json:"threshold"`
	Conditions []alertdomain.Condition `json:"conditions"`
}

// Evaluate runs alert rules against one classified email and returns the
// alerts that fired. An optional type selects a single built-in rule, with
// threshold overriding its default cut-off. Duplicates within the dedup
// window come back empty.
func (h *AlertHandler) Evaluate(c *gin.Context) {
	orgID := c.GetString("orgID")

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_id is required"})
		return
	}
	if req.Type != "" && !alertdomain.KnownRule(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown alert rule type"})
		return
	}
	for _, cond := range req.Conditions {
		if err := cond.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	fired, err := h.alertUsecase.EvaluateByEmail(c.Request.Context(), orgID, req.EmailID, usecase.EvalRequest{
		Rule:       req.Type,
		Threshold:  req.Threshold,
		Conditions: req.Conditions,
	})
	if err != nil {
		if errors.Is(err, intelidomain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no classification record for email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": fired,
		"fired":  len(fired),
	})
}

// EvaluateBatch re-evaluates every record classified within the batch window.
func (h *AlertHandler) EvaluateBatch(c *gin.Context) {
	orgID := c.GetString("orgID")

	result, err := h.alertUsecase.EvaluateBatch(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListNotifications returns recent alerts for the org, newest first.
func (h *AlertHandler) ListNotifications(c *gin.Context) {
	orgID := c.GetString("orgID")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	notifications, err := h.notifRepo.FindByOrgID(orgID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
