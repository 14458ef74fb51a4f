package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/instance"
	"github.com/timecard-works/timecard/internal/models"
)

// InstanceHandler serves the unauthenticated device lifecycle endpoints.
type InstanceHandler struct {
	svc *instance.Service
}

// NewInstanceHandler constructs an InstanceHandler.
func NewInstanceHandler(svc *instance.Service) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

// registerRequest is a device self-registration.
type registerRequest struct {
	ClientType        string          `json:"client_type" binding:"required"`
	DeviceFingerprint string          `json:"device_fingerprint" binding:"required"`
	DeviceInfo        json.RawMessage `json:"device_info"`
	DisplayName       *string         `json:"display_name"`
}

// Register creates a PENDING instance awaiting admin approval.
func (h *InstanceHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}

	reg, errRegister := h.svc.Register(c.Request.Context(), instance.RegisterInput{
		ClientType:  models.ClientType(body.ClientType),
		Fingerprint: body.DeviceFingerprint,
		DeviceInfo:  body.DeviceInfo,
		DisplayName: body.DisplayName,
	})
	if errRegister != nil {
		apierr.Respond(c, errRegister)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"instance_id": reg.ID,
		"status":      reg.Status,
	})
}

// Status reports the lifecycle state. Details are only shown once ACTIVE.
func (h *InstanceHandler) Status(c *gin.Context) {
	view, errStatus := h.svc.Status(c.Request.Context(), c.Param("id"))
	if errStatus != nil {
		apierr.Respond(c, errStatus)
		return
	}

	resp := gin.H{"status": view.Status}
	if view.Status == models.InstanceStatusActive {
		resp["display_name"] = view.DisplayName
		resp["employment_template"] = view.EmploymentTemplate
		resp["afternoon_cutoff"] = view.AfternoonCutoff
	}
	c.JSON(http.StatusOK, resp)
}

// ClaimToken hands out the bearer token exactly once.
func (h *InstanceHandler) ClaimToken(c *gin.Context) {
	claim, errClaim := h.svc.ClaimToken(c.Request.Context(), c.Param("id"))
	if errClaim != nil {
		apierr.Respond(c, errClaim)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"instance_token": claim.Token,
		"display_name":   claim.DisplayName,
	})
}
