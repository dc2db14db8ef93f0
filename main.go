package main

import (
	"context"
	"log"
	"strings"

	api "emailtrigger-backend/cmd/api"
	accountDomain "emailtrigger-backend/internal/account/domain"
	accountRepo "emailtrigger-backend/internal/account/repository"
	accountUsecase "emailtrigger-backend/internal/account/usecase"
	authDomain "emailtrigger-backend/internal/auth/domain"
	authRepo "emailtrigger-backend/internal/auth/repository"
	authUsecase "emailtrigger-backend/internal/auth/usecase"
	emailDomain "emailtrigger-backend/internal/email/domain"
	emailRepo "emailtrigger-backend/internal/email/repository"
	emailUsecase "emailtrigger-backend/internal/email/usecase"
	"emailtrigger-backend/internal/ingest"
	"emailtrigger-backend/internal/notification"
	triggerDomain "emailtrigger-backend/internal/trigger/domain"
	"emailtrigger-backend/internal/trigger/dispatcher"
	"emailtrigger-backend/internal/trigger/engine"
	triggerRepo "emailtrigger-backend/internal/trigger/repository"
	triggerUsecase "emailtrigger-backend/internal/trigger/usecase"
	"emailtrigger-backend/pkg/config"
	"emailtrigger-backend/pkg/database"
	"emailtrigger-backend/pkg/fcm"
	"emailtrigger-backend/pkg/oauth"
	"emailtrigger-backend/pkg/provider"
	gmailProvider "emailtrigger-backend/pkg/provider/gmail"
	imapProvider "emailtrigger-backend/pkg/provider/imapmail"
	outlookProvider "emailtrigger-backend/pkg/provider/outlook"
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
		&authDomain.User{}, &authDomain.RefreshToken{}, &authDomain.FCMToken{},
		&accountDomain.ConnectedAccount{},
		&emailDomain.Message{}, &emailDomain.Attachment{}, &emailDomain.SeenMessage{},
		&triggerDomain.TriggerRule{}, &triggerDomain.DispatchOutcome{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	fcmTokenRepository := authRepo.NewFCMTokenRepository(db)
	accountRepository := accountRepo.NewAccountRepository(db)
	messageRepository := emailRepo.NewMessageRepository(db)
	seenRepository := emailRepo.NewSeenMessageRepository(db)
	triggerRepository := triggerRepo.NewTriggerRepository(db)
	outcomeRepository := triggerRepo.NewOutcomeRepository(db)

	// OAuth manager and token lifecycle
	oauthManager := oauth.NewManager(cfg)
	tokenManager := accountUsecase.NewTokenManager(accountRepository, oauthManager, cfg.TokenRefreshMargin)

	// Provider adapters
	factory := provider.NewFactory()
	factory.Register(accountDomain.ProviderGmail, gmailProvider.NewAdapter())
	factory.Register(accountDomain.ProviderOutlook, outlookProvider.NewAdapter())
	factory.Register(accountDomain.ProviderIMAP, imapProvider.NewAdapter())

	// FCM client for push notification actions (optional)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[Main] FCM client unavailable, send_notification degrades to logging: %v", err)
		}
	}

	// Rule engine and action dispatcher
	ruleEngine := engine.NewEngine()
	dispatch := dispatcher.NewDispatcher(outcomeRepository, cfg.DispatchWorkers, cfg.DispatchAttempts, cfg.ActionTimeout)
	dispatch.RegisterExecutor(triggerDomain.ActionLogMessage, dispatcher.NewLogMessageExecutor())
	dispatch.RegisterExecutor(triggerDomain.ActionMarkAsRead, dispatcher.NewMarkAsReadExecutor(tokenManager, factory))
	dispatch.RegisterExecutor(triggerDomain.ActionForwardEmail, dispatcher.NewForwardEmailExecutor(tokenManager, factory))
	dispatch.RegisterExecutor(triggerDomain.ActionSendNotification, dispatcher.NewSendNotificationExecutor(fcmClient, fcmTokenRepository))
	dispatch.RegisterExecutor(triggerDomain.ActionWebhookCall, dispatcher.NewWebhookExecutor(nil))
	dispatch.RegisterExecutor(triggerDomain.ActionCustomScript, dispatcher.NewCustomScriptExecutor())
	dispatch.Start()

	// Ingest scheduler
	scheduler := ingest.NewScheduler(
		accountRepository, tokenManager, factory,
		messageRepository, seenRepository, triggerRepository,
		ruleEngine, dispatch,
		ingest.Options{
			PollInterval:   cfg.PollInterval,
			PollBackoffMax: cfg.PollBackoffMax,
			PageSize:       cfg.PollPageSize,
			CycleTimeout:   cfg.CycleTimeout,
		},
	)
	scheduler.Start()

	// Gmail push notifications (optional, needs a GCP project)
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, accountRepository, scheduler)
		if err != nil {
			log.Printf("[Main] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepository, cfg)
	accountUsecaseInstance := accountUsecase.NewAccountUsecase(accountRepository, oauthManager, factory, tokenManager)
	emailUsecaseInstance := emailUsecase.NewEmailUsecase(messageRepository)
	triggerUsecaseInstance := triggerUsecase.NewTriggerUsecase(triggerRepository, outcomeRepository, messageRepository, ruleEngine)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, fcmTokenRepository, accountUsecaseInstance, emailUsecaseInstance, triggerUsecaseInstance, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
