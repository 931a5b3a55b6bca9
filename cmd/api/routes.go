package main

import (
	"database/sql"
	"net/http"
	"time"

	"auditlog-service/internal/httpapi"
	"auditlog-service/internal/rbac"
	"auditlog-service/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// AUTH routes (token issuance).
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", h.Login)
		}

		// AUDIT LOG routes. Writers append; auditors read and verify;
		// admin can do both.
		logs := v1.Group("/audit-logs")
		logs.Use(authMW)
		{
			logs.POST("", rbac.RequireAnyRole(rbac.RoleWriter), h.CreateAuditLog)
			logs.GET("", rbac.RequireAnyRole(rbac.RoleAuditor), h.ListAuditLogs)
			logs.GET("/:id/verify", rbac.RequireAnyRole(rbac.RoleAuditor), h.VerifyAuditLog)
		}
	}
}
