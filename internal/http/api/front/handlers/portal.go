package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/portal"
)

// PortalHandler serves employee portal sign-in and password reset.
type PortalHandler struct {
	svc *portal.Service
}

// NewPortalHandler constructs a PortalHandler.
func NewPortalHandler(svc *portal.Service) *PortalHandler {
	return &PortalHandler{svc: svc}
}

// portalLoginRequest holds portal credentials.
type portalLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges portal credentials for a fresh bearer token.
func (h *PortalHandler) Login(c *gin.Context) {
	var body portalLoginRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}

	result, errLogin := h.svc.Login(c.Request.Context(), portal.LoginInput{
		Email:    body.Email,
		Password: body.Password,
	})
	if errLogin != nil {
		apierr.Respond(c, errLogin)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"instance_id":         result.InstanceID,
		"instance_token":      result.Token,
		"display_name":        result.DisplayName,
		"employment_template": result.EmploymentTemplate,
		"afternoon_cutoff":    result.AfternoonCutoff,
	})
}

// portalResetRequest consumes a reset token.
type portalResetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Reset sets a new password using a single-use reset token.
func (h *PortalHandler) Reset(c *gin.Context) {
	var body portalResetRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	if errReset := h.svc.ResetPassword(c.Request.Context(), body.Token, body.Password); errReset != nil {
		apierr.Respond(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
