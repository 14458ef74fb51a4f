// Package http holds gin middleware and request helpers shared by the
// device, portal and admin routers.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/access"
	"github.com/timecard-works/timecard/internal/apierr"
)

// principalKey is the gin context key holding the authenticated *access.Principal.
const principalKey = "instancePrincipal"

// BearerAuthMiddleware authenticates instance bearer tokens and injects the principal.
func BearerAuthMiddleware(guard *access.BearerGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, errAuth := guard.Authenticate(c.Request.Context(), c.Request)
		if errAuth != nil {
			apierr.Respond(c, errAuth)
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal set by BearerAuthMiddleware.
func PrincipalFrom(c *gin.Context) (*access.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*access.Principal)
	return principal, ok && principal != nil
}
