package delivery

import (
	"net/http"

	"leadpulse-backend/internal/account/domain"
	"leadpulse-backend/internal/account/repository"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountRepo repository.AccountRepository
	deviceRepo  repository.DeviceTokenRepository
}

func NewAccountHandler(accountRepo repository.AccountRepository, deviceRepo repository.DeviceTokenRepository) *AccountHandler {
	return &AccountHandler{
		accountRepo: accountRepo,
		deviceRepo:  deviceRepo,
	}
}

// ListAccounts returns the org's connected accounts with their sync state.
// Tokens never leave the struct; they are excluded at the JSON layer.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	orgID := c.GetString("orgID")

	accounts, err := h.accountRepo.FindByOrgID(orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

type registerDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

func (h *AccountHandler) RegisterDevice(c *gin.Context) {
	orgID := c.GetString("orgID")

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	err := h.deviceRepo.Register(&domain.DeviceToken{
		OrgID:    orgID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

func (h *AccountHandler) UnregisterDevice(c *gin.Context) {
	token := c.Param("token")
	if err := h.deviceRepo.DeleteByToken(token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "device unregistered"})
}
