package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/dealroom-chat/internal/handlers"
	"github.com/thereayou/dealroom-chat/internal/middleware"
)

type routerDeps struct {
	Auth      *middleware.Authenticator
	RateLimit *middleware.RateLimiter
	Conv      *handlers.ConversationHandler
	Realtime  *handlers.RealtimeHandler
	WS        *handlers.WebSocketHandler
	User      *handlers.UserHandler
	Health    *handlers.HealthHandler
}

func APIEndpoints(d routerDeps, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler(logger))

	r.GET("/health", d.Health.Health)
	r.GET("/ws", d.Auth.RequireSocketAuth(), d.WS.HandleWebSocket)

	api := r.Group("/api/v1")
	api.Use(d.Auth.RequireAuth())
	{
		api.GET("/me", d.User.GetMe)

		conv := api.Group("/conversations")
		{
			conv.POST("", d.Conv.Create)
			conv.POST("/team", d.Conv.CreateTeam)
			conv.GET("", d.Conv.List)
			conv.GET("/:id", d.Conv.Get)
			conv.GET("/:id/messages", d.Conv.ListMessages)
			conv.POST("/:id/messages", d.RateLimit.PerUser(), d.Conv.SendMessage)
			conv.POST("/:id/read", d.Conv.MarkRead)
			conv.GET("/:id/presence", d.Realtime.Presence)
		}

		api.POST("/realtime/auth", d.Realtime.Authorize)
	}

	return r
}
