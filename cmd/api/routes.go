package main

import (
	"dialer-platform/internal/auth"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by provider signature validation in production.
	r.POST("/webhooks/call-outcome", h.CallOutcomeWebhook)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// Identity echo, useful for smoke tests.
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			tid, _ := auth.TenantID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "tenant_id": tid, "role": role})
		})

		// AUTH routes (token issuance).
		// NOTE: This is a placeholder login route; real credential validation is not implemented.
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
		}

		// CALLS routes: direct-lane enqueue and job management.
		callsGroup := v1.Group("/calls")
		callsGroup.Use(rbac.RequireTenant())
		callsGroup.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAgent, rbac.RoleSuperAdmin))
		{
			callsGroup.POST("/direct", h.EnqueueDirectCall)
			callsGroup.PATCH("/jobs/:job_id", h.UpdateJob)
			callsGroup.DELETE("/jobs/:job_id", h.CancelJob)
		}

		// CAMPAIGNS routes
		campaigns := v1.Group("/campaigns")
		campaigns.Use(rbac.RequireTenant())
		campaigns.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAnalyst, rbac.RoleSuperAdmin))
		{
			campaigns.POST("/", h.CreateCampaign)
			campaigns.GET("/", h.ListCampaigns)
			campaigns.GET("/:campaign_id", h.GetCampaign)
			campaigns.PATCH("/:campaign_id", h.UpdateCampaign)
			campaigns.POST("/:campaign_id/start", h.StartCampaign)
			campaigns.POST("/:campaign_id/pause", h.PauseCampaign)
			campaigns.POST("/:campaign_id/resume", h.ResumeCampaign)
			campaigns.POST("/:campaign_id/cancel", h.CancelCampaign)
			campaigns.GET("/:campaign_id/analytics", h.CampaignAnalytics)
		}

		// DISPATCH routes: pull workers claim and report on jobs.
		dispatch := v1.Group("/dispatch")
		dispatch.Use(rbac.RequireTenant())
		dispatch.Use(rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleSuperAdmin))
		{
			dispatch.POST("/claim", h.ClaimNext)
			dispatch.POST("/jobs/:job_id/release", h.ReleaseClaim)
			dispatch.POST("/jobs/:job_id/heartbeat", h.Heartbeat)
			dispatch.POST("/jobs/:job_id/call", h.AttachCall)
		}

		// ADMIN routes
		// Only owner/super_admin can access admin endpoints by default.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireTenant())
		admin.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})
		}
	}
}
