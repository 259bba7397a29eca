package delivery

import (
	"errors"
	"net/http"

	"leadpulse-backend/internal/intelligence/domain"
	"leadpulse-backend/internal/intelligence/usecase"

	"github.com/gin-gonic/gin"
)

type IntelligenceHandler struct {
	intelUsecase usecase.IntelligenceUsecase
}

func NewIntelligenceHandler(intelUsecase usecase.IntelligenceUsecase) *IntelligenceHandler {
	return &IntelligenceHandler{intelUsecase: intelUsecase}
}

type classifyRequest struct {
	EmailID string `json:"email_id" binding:"required"`
}

// Classify returns the classification verdict for one email. Repeat calls
// for the same email return the stored verdict without touching the model.
func (h *IntelligenceHandler) Classify(c *gin.Context) {
	orgID := c.GetString("orgID")

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_id is required"})
		return
	}

	record, err := h.intelUsecase.Classify(c.Request.Context(), orgID, req.EmailID)
	if err != nil {
		var malformed *domain.MalformedResponseError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		case errors.Is(err, domain.ErrNoContent):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "email has no classifiable content"})
		case errors.As(err, &malformed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "model returned an unparseable response"})
		case errors.Is(err, domain.ErrModelUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classification model unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, record)
}
