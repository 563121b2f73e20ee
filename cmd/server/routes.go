package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rdychk/rdychk/internal/handlers"
	"github.com/rdychk/rdychk/internal/middleware"
	"github.com/rdychk/rdychk/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(svc.cfg.CORS.AllowedOrigins))

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	api := r.Group("/api")
	api.Use(middleware.OptionalUser())
	{
		// Unauthenticated entry points are rate limited
		limited := api.Group("", svc.limiter.Middleware())
		limited.POST("/groups", svc.groupHandler.Create)
		limited.GET("/preview", svc.previewHandler.Get)

		group := api.Group("/groups/:slug")
		{
			group.GET("", svc.groupHandler.Get)
			group.GET("/session", svc.groupHandler.Whoami)
			group.POST("/join", svc.limiter.Middleware(), svc.groupHandler.Join)
			group.POST("/reclaim", svc.limiter.Middleware(), svc.groupHandler.Reclaim)

			// Everything below acts as :memberId and requires that member's session
			member := group.Group("/members/:memberId")
			member.Use(svc.limiter.Middleware(), middleware.RequireMember(svc.sessions, svc.authz), middleware.AuditLog())
			{
				member.PATCH("", svc.memberHandler.Update)
				member.DELETE("", svc.memberHandler.Leave)
				member.POST("/ready", svc.memberHandler.ToggleReady)
				member.POST("/promote", svc.memberHandler.Promote)
				member.POST("/kick", svc.memberHandler.Kick)
				member.PATCH("/settings", svc.memberHandler.UpdateSettings)
				member.PUT("/location", svc.locationHandler.Update)
				member.POST("/vote", svc.locationHandler.Vote)
			}
		}
	}
}
