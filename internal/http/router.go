package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/summithq/summithq-security/internal/config"
	"github.com/summithq/summithq-security/internal/http/handler"
	httpmiddleware "github.com/summithq/summithq-security/internal/http/middleware"
	"github.com/summithq/summithq-security/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, securityHandler *handler.SecurityHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	// Called by the identity provider during authentication flows.
	hooks := r.Group("/hooks")
	{
		hooks.POST("/attempts", securityHandler.RecordAttempt)
		hooks.POST("/sessions", securityHandler.CreateSession)
		hooks.POST("/sessions/:id/touch", securityHandler.TouchSession)
		hooks.GET("/users/:id/lockout", securityHandler.LockoutStatus)
	}

	admin := r.Group("/admin", authMiddleware.RequireAdmin)
	{
		security := admin.Group("/security")
		{
			security.GET("/metrics", securityHandler.Metrics)
			security.GET("/activity", securityHandler.RecentActivity)
			security.GET("/events", securityHandler.SecurityEvents)
			security.POST("/events/:id/resolve", securityHandler.ResolveEvent)
			security.GET("/attempts", securityHandler.RecentAttempts)
			security.GET("/failed-ips", securityHandler.TopFailedIPs)
			security.GET("/trends", securityHandler.LoginTrends)
		}

		sessions := admin.Group("/sessions")
		{
			sessions.GET("", securityHandler.ActiveSessions)
			sessions.GET("/stats", securityHandler.SessionStats)
			sessions.GET("/suspicious", securityHandler.SuspiciousSessions)
			sessions.GET("/:id", securityHandler.GetSession)
			sessions.POST("/:id/terminate", securityHandler.TerminateSession)
		}

		users := admin.Group("/users")
		{
			users.GET("/:id/lockout", securityHandler.LockoutStatus)
			users.GET("/:id/sessions", securityHandler.UserSessions)
			users.POST("/:id/lock", securityHandler.LockUser)
			users.POST("/:id/unlock", securityHandler.UnlockUser)
			users.POST("/:id/sessions/terminate", securityHandler.TerminateUserSessions)
		}
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
