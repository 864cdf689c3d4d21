package main

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Systemsaholic/call-helm-bridge/internal/auth"
	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
	"github.com/Systemsaholic/call-helm-bridge/internal/callapi"
	"github.com/Systemsaholic/call-helm-bridge/internal/config"
	"github.com/Systemsaholic/call-helm-bridge/internal/webhook"
)

type routeDeps struct {
	cfg     config.Config
	auth    *auth.Manager
	machine *bridge.Machine
	calls   bridge.Store
	rdb     *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). The continuation token in client_state is
	// opaque but not secret; lookups only ever hit our own records.
	// NOTE: This endpoint should be protected by provider signature validation in production.
	{
		h := webhook.Handler{
			Machine: deps.machine,
			Calls:   deps.calls,
		}
		r.GET("/webhooks/telephony", h.Verify)
		r.POST("/webhooks/telephony", h.Receive)
	}

	// protected API group
	v1 := r.Group("/v1")
	{
		h := callapi.Handlers{
			Auth:          deps.auth,
			Machine:       deps.machine,
			Calls:         deps.calls,
			Redis:         deps.rdb,
			MaxConcurrent: deps.cfg.Bridge.MaxConcurrentCalls,
			DefaultFrom:   deps.cfg.Provider.FromNumber,
		}

		// AUTH routes (token issuance).
		// NOTE: This is a placeholder login route; real credential validation is not implemented.
		v1.POST("/auth/login", h.Login)

		protected := v1.Group("")
		protected.Use(auth.RequireAccessToken(deps.auth))
		{
			protected.GET("/me", func(c *gin.Context) {
				uid, _ := auth.UserID(c.Request.Context())
				wid, _ := auth.WorkspaceID(c.Request.Context())
				c.JSON(200, gin.H{"user_id": uid, "workspace_id": wid})
			})

			protected.POST("/calls", h.StartCall)
			protected.GET("/calls/:call_id", h.GetCall)
		}
	}
}
