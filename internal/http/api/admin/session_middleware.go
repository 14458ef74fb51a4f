package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/http/api/admin/handlers"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/session"
)

// adminSessionMiddleware loads the admin session named by the session cookie.
func adminSessionMiddleware(guard *session.Guard) gin.HandlerFunc {
	cookieName := guard.Config().CookieName

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		cookie, errCookie := c.Cookie(cookieName)
		if errCookie != nil || cookie == "" {
			apierr.Respond(c, session.ErrNotAuthenticated())
			return
		}
		sess, errAuth := guard.Authenticate(c.Request.Context(), cookie)
		if errAuth != nil {
			apierr.Respond(c, errAuth)
			return
		}

		c.Set(handlers.SessionContextKey, sess)
		c.Next()
	}
}

// csrfMiddleware requires the session's CSRF token on every state-changing request.
func csrfMiddleware(guard *session.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		sess, ok := readSessionFromContext(c)
		if !ok {
			apierr.Respond(c, session.ErrNotAuthenticated())
			return
		}
		if errVerify := guard.VerifyCSRF(sess, c.GetHeader(session.HeaderCSRF)); errVerify != nil {
			apierr.Respond(c, errVerify)
			return
		}

		c.Next()
	}
}

// readSessionFromContext extracts the admin session from the gin context.
func readSessionFromContext(c *gin.Context) (*models.AdminSession, bool) {
	value, ok := c.Get(handlers.SessionContextKey)
	if !ok {
		return nil, false
	}
	sess, ok := value.(*models.AdminSession)
	return sess, ok && sess != nil
}
