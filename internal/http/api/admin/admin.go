// Package admin wires the session-protected administration endpoints.
package admin

import (
	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/attendance"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/export"
	"github.com/timecard-works/timecard/internal/http/api/admin/handlers"
	"github.com/timecard-works/timecard/internal/instance"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/portal"
	"github.com/timecard-works/timecard/internal/ratelimit"
	"github.com/timecard-works/timecard/internal/session"
	"github.com/timecard-works/timecard/internal/settings"
	"gorm.io/gorm"
)

// Deps are the services behind the admin routes.
type Deps struct {
	DB        *gorm.DB
	Guard     *session.Guard
	Instances *instance.Service
	Ledger    *attendance.Ledger
	Exporter  *export.Exporter
	Portal    *portal.Service
	Settings  *settings.Store
	// Limiter may be nil when rate limiting is disabled.
	Limiter ratelimit.Limiter
	Limits  config.RateLimitConfig
	Metrics *metrics.Metrics
}

// RegisterAdminRoutes registers the admin login and every session-protected route under r.
func RegisterAdminRoutes(r gin.IRouter, deps Deps) {
	if r == nil || deps.Guard == nil {
		return
	}

	admin := r.Group("/admin")

	authHandler := handlers.NewAuthHandler(deps.Guard)
	admin.POST("/login",
		ratelimit.Middleware(deps.Limiter, ratelimit.ClassAdminLogin, ratelimit.RuleFrom(deps.Limits.AdminLogin), deps.Metrics),
		authHandler.Login,
	)

	authed := admin.Group("")
	authed.Use(adminSessionMiddleware(deps.Guard))
	authed.Use(csrfMiddleware(deps.Guard))

	authed.GET("/csrf", authHandler.CSRF)
	authed.GET("/me", authHandler.Me)
	authed.POST("/logout", authHandler.Logout)
	authed.GET("/version", handlers.NewVersionHandler().GetVersion)

	instanceHandler := handlers.NewInstanceHandler(deps.Instances)
	authed.GET("/instances", instanceHandler.List)
	authed.POST("/instances/merge", instanceHandler.Merge)
	authed.DELETE("/instances/pending", instanceHandler.DeletePending)
	authed.POST("/instances/:id/activate", instanceHandler.Activate)
	authed.POST("/instances/:id/rename", instanceHandler.Rename)
	authed.POST("/instances/:id/revoke", instanceHandler.Revoke)
	authed.POST("/instances/:id/deactivate", instanceHandler.Deactivate)
	authed.POST("/instances/:id/set-template", instanceHandler.SetTemplate)
	authed.POST("/instances/:id/reset-token", instanceHandler.ResetToken)
	authed.DELETE("/instances/:id", instanceHandler.Delete)

	attendanceHandler := handlers.NewAttendanceHandler(deps.Ledger)
	authed.GET("/attendance", attendanceHandler.Month)
	authed.PUT("/attendance", attendanceHandler.Upsert)
	authed.POST("/attendance/lock", attendanceHandler.Lock)
	authed.POST("/attendance/unlock", attendanceHandler.Unlock)

	exportHandler := handlers.NewExportHandler(deps.Exporter)
	authed.GET("/export", exportHandler.Export)

	settingsHandler := handlers.NewSettingsHandler(deps.DB, deps.Settings)
	authed.GET("/settings", settingsHandler.Get)
	authed.PUT("/settings", settingsHandler.Put)

	if deps.Portal != nil {
		userHandler := handlers.NewUserHandler(deps.Portal)
		authed.GET("/users", userHandler.List)
		authed.POST("/users", userHandler.Create)
		authed.PUT("/users/:id", userHandler.Update)
		authed.POST("/users/:id/reset-token", userHandler.ResetToken)
	}
}
