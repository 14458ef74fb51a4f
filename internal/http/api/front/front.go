// Package front wires the device and portal endpoints.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/access"
	"github.com/timecard-works/timecard/internal/attendance"
	"github.com/timecard-works/timecard/internal/config"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/http/api/front/handlers"
	"github.com/timecard-works/timecard/internal/instance"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/portal"
	"github.com/timecard-works/timecard/internal/ratelimit"
)

// Deps are the services behind the front routes.
type Deps struct {
	Instances *instance.Service
	Ledger    *attendance.Ledger
	Portal    *portal.Service
	Bearer    *access.BearerGuard
	// Limiter may be nil when rate limiting is disabled.
	Limiter ratelimit.Limiter
	Limits  config.RateLimitConfig
	Metrics *metrics.Metrics
}

// RegisterFrontRoutes registers device lifecycle, portal and attendance routes under r.
func RegisterFrontRoutes(r gin.IRouter, deps Deps) {
	if r == nil || deps.Instances == nil || deps.Ledger == nil {
		return
	}

	limit := func(class string, rule config.LimitRule) gin.HandlerFunc {
		return ratelimit.Middleware(deps.Limiter, class, ratelimit.RuleFrom(rule), deps.Metrics)
	}

	instanceHandler := handlers.NewInstanceHandler(deps.Instances)
	r.POST("/instances/register", limit(ratelimit.ClassRegister, deps.Limits.Register), instanceHandler.Register)
	r.GET("/instances/:id/status", limit(ratelimit.ClassInstanceStatus, deps.Limits.InstanceStatus), instanceHandler.Status)
	r.POST("/instances/:id/claim-token", limit(ratelimit.ClassClaimToken, deps.Limits.ClaimToken), instanceHandler.ClaimToken)

	if deps.Portal != nil {
		portalHandler := handlers.NewPortalHandler(deps.Portal)
		portalLimit := limit(ratelimit.ClassPortalLogin, deps.Limits.PortalLogin)
		r.POST("/portal/login", portalLimit, portalHandler.Login)
		r.POST("/portal/reset", portalLimit, portalHandler.Reset)
	}

	authed := r.Group("")
	authed.Use(apihttp.BearerAuthMiddleware(deps.Bearer))

	attendanceHandler := handlers.NewAttendanceHandler(deps.Ledger)
	authed.GET("/attendance", attendanceHandler.Month)
	authed.PUT("/attendance", attendanceHandler.Upsert)
}
