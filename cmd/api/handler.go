package api

import (
	accountDelivery "emailtrigger-backend/internal/account/delivery"
	accountUsecasePkg "emailtrigger-backend/internal/account/usecase"
	authDelivery "emailtrigger-backend/internal/auth/delivery"
	authRepo "emailtrigger-backend/internal/auth/repository"
	authUsecasePkg "emailtrigger-backend/internal/auth/usecase"
	emailDelivery "emailtrigger-backend/internal/email/delivery"
	emailUsecasePkg "emailtrigger-backend/internal/email/usecase"
	triggerDelivery "emailtrigger-backend/internal/trigger/delivery"
	triggerUsecasePkg "emailtrigger-backend/internal/trigger/usecase"
	"emailtrigger-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase    authUsecasePkg.AuthUsecase
	authHandler    *authDelivery.AuthHandler
	accountHandler *accountDelivery.AccountHandler
	emailHandler   *emailDelivery.EmailHandler
	triggerHandler *triggerDelivery.TriggerHandler
	config         *config.Config
}

func NewHandler(
	authUc authUsecasePkg.AuthUsecase,
	fcmTokens authRepo.FCMTokenRepository,
	accountUc accountUsecasePkg.AccountUsecase,
	emailUc emailUsecasePkg.EmailUsecase,
	triggerUc triggerUsecasePkg.TriggerUsecase,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:    authUc,
		authHandler:    authDelivery.NewAuthHandler(authUc, fcmTokens),
		accountHandler: accountDelivery.NewAccountHandler(accountUc),
		emailHandler:   emailDelivery.NewEmailHandler(emailUc),
		triggerHandler: triggerDelivery.NewTriggerHandler(triggerUc),
		config:         cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)

	return r.Run(addr)
}
