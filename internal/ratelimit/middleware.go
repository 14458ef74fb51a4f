package ratelimit

import (
	"errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/metrics"
)

var errLimiterUnavailable = errors.New("ratelimit: limiter not configured")

// Middleware throttles a route class by client IP. Rejected requests never
// reach the next handler. A missing or failing limiter rejects the request.
func Middleware(limiter Limiter, class string, rule Rule, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			log.WithField("class", class).Error("rate limiter not configured")
			apierr.Respond(c, errLimiterUnavailable)
			return
		}
		key := class + ":" + c.ClientIP()
		decision, errAllow := limiter.Allow(c.Request.Context(), key, rule)
		if errAllow != nil {
			log.WithError(errAllow).WithField("class", class).Error("rate limiter unavailable")
			apierr.Respond(c, errAllow)
			return
		}
		if !decision.Allowed {
			m.RateLimited(class)
			log.WithFields(log.Fields{"class": class, "client_ip": c.ClientIP()}).Debug("rate limit exceeded")
			apierr.Respond(c, apierr.TooManyRequests(decision.RetryAfter))
			return
		}
		c.Next()
	}
}
