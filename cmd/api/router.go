package api

import (
	"net/http"

	authDelivery "emailtrigger-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.authHandler.Register)
			auth.POST("/login", h.authHandler.Login)
			auth.POST("/refresh", h.authHandler.Refresh)
			auth.POST("/logout", h.authHandler.Logout)
		}

		// FCM device routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(authDelivery.AuthMiddleware(h.authUsecase))
		{
			fcm.POST("/register", h.authHandler.RegisterDevice)
			fcm.DELETE("/unregister", h.authHandler.UnregisterDevice)
		}

		// OAuth connect flow. The callback is unauthenticated: the provider
		// redirects here and the state parameter carries the user.
		oauth := api.Group("/oauth")
		{
			oauth.GET("/:provider/callback", h.accountHandler.Callback)
			oauth.GET("/:provider/connect", authDelivery.AuthMiddleware(h.authUsecase), h.accountHandler.Connect)
		}

		// Connected account routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(authDelivery.AuthMiddleware(h.authUsecase))
		{
			accounts.GET("", h.accountHandler.List)
			accounts.POST("/imap", h.accountHandler.ConnectIMAP)
			accounts.DELETE("/:id", h.accountHandler.Revoke)
			accounts.GET("/:id/permissions", h.accountHandler.CheckPermissions)
		}

		// Ingested message routes (protected)
		messages := api.Group("/messages")
		messages.Use(authDelivery.AuthMiddleware(h.authUsecase))
		{
			messages.GET("", h.emailHandler.ListRecent)
			messages.GET("/:id", h.emailHandler.GetByID)
		}

		// Trigger rule routes (protected)
		triggers := api.Group("/triggers")
		triggers.Use(authDelivery.AuthMiddleware(h.authUsecase))
		{
			triggers.GET("", h.triggerHandler.List)
			triggers.POST("", h.triggerHandler.Create)
			triggers.POST("/test", h.triggerHandler.TestRule)
			triggers.GET("/outcomes", h.triggerHandler.ListOutcomes)
			triggers.GET("/:id", h.triggerHandler.Get)
			triggers.PUT("/:id", h.triggerHandler.Update)
			triggers.DELETE("/:id", h.triggerHandler.Delete)
		}
	}
}
