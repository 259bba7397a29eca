package api

import (
	"net/http"

	"leadpulse-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		protected := api.Group("")
		protected.Use(delivery.AuthMiddleware(h.config.JWTSecret))
		{
			// Sync orchestration
			protected.POST("/sync/auto", h.syncHandler.AutoSync)
			protected.POST("/sync/manual", h.syncHandler.ManualSync)

			// Accounts
			protected.GET("/accounts", h.accountHandler.ListAccounts)

			// Classification
			protected.POST("/classify", h.intelHandler.Classify)

			// Alerts
			protected.POST("/alerts", h.alertHandler.Evaluate)
			protected.PUT("/alerts", h.alertHandler.EvaluateBatch)
			protected.GET("/alerts", h.alertHandler.ListNotifications)

			// Push device registry
			protected.POST("/devices", h.accountHandler.RegisterDevice)
			protected.DELETE("/devices/:token", h.accountHandler.UnregisterDevice)
		}
	}
}
