package api

import (
	accountDelivery "leadpulse-backend/internal/account/delivery"
	accountRepo "leadpulse-backend/internal/account/repository"
	alertDelivery "leadpulse-backend/internal/alert/delivery"
	alertRepo "leadpulse-backend/internal/alert/repository"
	alertUsecase "leadpulse-backend/internal/alert/usecase"
	inteliDelivery "leadpulse-backend/internal/intelligence/delivery"
	inteliUsecase "leadpulse-backend/internal/intelligence/usecase"
	syncDelivery "leadpulse-backend/internal/sync/delivery"
	syncUsecase "leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/config"
)

// Handler bundles the delivery handlers the router mounts.
type Handler struct {
	config         *config.Config
	accountHandler *accountDelivery.AccountHandler
	syncHandler    *syncDelivery.SyncHandler
	intelHandler   *inteliDelivery.IntelligenceHandler
	alertHandler   *alertDelivery.AlertHandler
}

func NewHandler(
	cfg *config.Config,
	accounts accountRepo.AccountRepository,
	devices accountRepo.DeviceTokenRepository,
	notifications alertRepo.NotificationRepository,
	syncUC syncUsecase.SyncUsecase,
	intelUC inteliUsecase.IntelligenceUsecase,
	alertUC alertUsecase.AlertUsecase,
) *Handler {
	return &Handler{
		config:         cfg,
		accountHandler: accountDelivery.NewAccountHandler(accounts, devices),
		syncHandler:    syncDelivery.NewSyncHandler(syncUC, cfg),
		intelHandler:   inteliDelivery.NewIntelligenceHandler(intelUC),
		alertHandler:   alertDelivery.NewAlertHandler(alertUC, notifications),
	}
}
