package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/session"
)

// SessionContextKey holds the authenticated *models.AdminSession.
const SessionContextKey = "adminSession"

// adminSession extracts the session loaded by the admin session middleware.
func adminSession(c *gin.Context) (*models.AdminSession, error) {
	value, exists := c.Get(SessionContextKey)
	if !exists {
		return nil, session.ErrNotAuthenticated()
	}
	sess, ok := value.(*models.AdminSession)
	if !ok || sess == nil {
		return nil, session.ErrNotAuthenticated()
	}
	return sess, nil
}

// okResponse is the body of mutations that return nothing else.
var okResponse = gin.H{"ok": true}
