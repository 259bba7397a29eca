package main

import (
	"context"
	"log"
	"strings"

	api "leadpulse-backend/cmd/api"
	accountdomain "leadpulse-backend/internal/account/domain"
	accountRepo "leadpulse-backend/internal/account/repository"
	alertdomain "leadpulse-backend/internal/alert/domain"
	alertRepo "leadpulse-backend/internal/alert/repository"
	alertUsecase "leadpulse-backend/internal/alert/usecase"
	intelidomain "leadpulse-backend/internal/intelligence/domain"
	inteliRepo "leadpulse-backend/internal/intelligence/repository"
	inteliUsecase "leadpulse-backend/internal/intelligence/usecase"
	"leadpulse-backend/internal/notification"
	syncdomain "leadpulse-backend/internal/sync/domain"
	syncRepo "leadpulse-backend/internal/sync/repository"
	"leadpulse-backend/internal/sync/scheduler"
	syncUC "leadpulse-backend/internal/sync/usecase"
	"leadpulse-backend/pkg/ai"
	"leadpulse-backend/pkg/config"
	"leadpulse-backend/pkg/crypto"
	"leadpulse-backend/pkg/database"
	"leadpulse-backend/pkg/fcm"
	"leadpulse-backend/pkg/gcal"
	"leadpulse-backend/pkg/gmail"
	"leadpulse-backend/pkg/msgraph"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&accountdomain.Org{},
		&accountdomain.ProviderAccount{},
		&accountdomain.DeviceToken{},
		&syncdomain.Thread{},
		&syncdomain.Message{},
		&syncdomain.CalendarEvent{},
		&intelidomain.IntelligenceRecord{},
		&intelidomain.ProcessingQueueItem{},
		&alertdomain.Notification{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Field encryption for tokens at rest
	cryptoSvc, err := crypto.NewService(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize field encryption:", err)
	}

	// Initialize repositories (dependency injection)
	orgRepository := accountRepo.NewOrgRepository(db)
	accountRepository := accountRepo.NewAccountRepository(db)
	deviceRepository := accountRepo.NewDeviceTokenRepository(db)
	threadRepository := syncRepo.NewThreadRepository(db)
	messageRepository := syncRepo.NewMessageRepository(db)
	eventRepository := syncRepo.NewEventRepository(db)
	intelRepository := inteliRepo.NewIntelligenceRepository(db)
	queueRepository := inteliRepo.NewQueueRepository(db)
	notifRepository := alertRepo.NewNotificationRepository(db)

	// Provider clients
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	gcalService := gcal.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	graphService := msgraph.NewService(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret)

	mailProviders := map[string]syncdomain.MailProvider{
		accountdomain.ProviderGmail:   gmailService,
		accountdomain.ProviderOutlook: graphService,
	}
	calendarProviders := map[string]syncdomain.CalendarProvider{
		accountdomain.ProviderGmail: gcalService,
	}

	// Classification model with fallback routing
	var completer ai.Completer
	if cfg.GeminiAPIKey != "" {
		completer = ai.NewFallbackClient(
			ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.PrimaryModel),
			ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.FallbackModel),
		)
	} else {
		log.Println("[WARN] GEMINI_API_KEY not set, classification disabled")
	}

	// FCM client for alert push delivery (optional)
	var pusher alertUsecase.Pusher
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (alert pushes disabled): %v", err)
		} else {
			pusher = fcmClient
		}
	}

	// Usecases
	alertUC := alertUsecase.NewAlertUsecase(
		notifRepository, intelRepository, messageRepository, deviceRepository,
		pusher, cfg.AlertDedupWindow, cfg.AlertBatchWindow,
	)
	intelUC := inteliUsecase.NewIntelligenceUsecase(
		intelRepository, queueRepository, messageRepository, completer, alertUC,
	)
	syncUsecase := syncUC.NewSyncUsecase(
		accountRepository, threadRepository, messageRepository, eventRepository,
		mailProviders, calendarProviders, cryptoSvc, intelUC, cfg,
	)

	// Background sync scheduler, one loop per org
	syncScheduler := scheduler.NewScheduler(orgRepository, accountRepository, syncUsecase, cfg)
	if err := syncScheduler.Start(); err != nil {
		log.Fatal("Failed to start sync scheduler:", err)
	}
	defer syncScheduler.Stop()

	// Gmail push ingestion via Pub/Sub (optional)
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		notificationService, err := notification.NewService(
			cfg.GoogleProjectID, topicName, orgRepository, accountRepository,
			syncUsecase, cryptoSvc, gmailService, cfg.GoogleCredentials,
		)
		if err != nil {
			log.Printf("[WARN] Failed to initialize notification service: %v", err)
		} else {
			go notificationService.Start(context.Background())
		}
	}

	// HTTP server
	r := gin.Default()
	handler := api.NewHandler(cfg, accountRepository, deviceRepository, notifRepository, syncUsecase, intelUC, alertUC)
	api.SetupRoutes(r, handler)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
