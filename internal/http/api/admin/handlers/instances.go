package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/instance"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/timeparse"
)

// InstanceHandler manages instances on behalf of the admin.
type InstanceHandler struct {
	svc *instance.Service
}

// NewInstanceHandler constructs an InstanceHandler.
func NewInstanceHandler(svc *instance.Service) *InstanceHandler {
	return &InstanceHandler{svc: svc}
}

// instanceView is the admin projection of an instance. It never carries token material.
type instanceView struct {
	ID                 string                    `json:"id"`
	ClientType         models.ClientType         `json:"client_type"`
	DeviceFingerprint  string                    `json:"device_fingerprint"`
	Status             models.InstanceStatus     `json:"status"`
	DisplayName        *string                   `json:"display_name"`
	ProfileInstanceID  *string                   `json:"profile_instance_id"`
	EmploymentTemplate models.EmploymentTemplate `json:"employment_template"`
	AfternoonCutoff    string                    `json:"afternoon_cutoff"`
	CutoffOverride     *string                   `json:"afternoon_cutoff_override"`
	HasToken           bool                      `json:"has_token"`
	TokenIssuedAt      *time.Time                `json:"token_issued_at"`
	CreatedAt          time.Time                 `json:"created_at"`
	LastSeenAt         *time.Time                `json:"last_seen_at"`
	ActivatedAt        *time.Time                `json:"activated_at"`
	RevokedAt          *time.Time                `json:"revoked_at"`
	DeactivatedAt      *time.Time                `json:"deactivated_at"`
}

func (h *InstanceHandler) view(inst *models.Instance) instanceView {
	out := instanceView{
		ID:                 inst.ID,
		ClientType:         inst.ClientType,
		DeviceFingerprint:  inst.DeviceFingerprint,
		Status:             inst.Status,
		DisplayName:        inst.DisplayName,
		ProfileInstanceID:  inst.ProfileInstanceID,
		EmploymentTemplate: inst.EmploymentTemplate,
		AfternoonCutoff:    h.svc.CutoffFor(inst),
		HasToken:           inst.HasToken(),
		TokenIssuedAt:      inst.TokenIssuedAt,
		CreatedAt:          inst.CreatedAt,
		LastSeenAt:         inst.LastSeenAt,
		ActivatedAt:        inst.ActivatedAt,
		RevokedAt:          inst.RevokedAt,
		DeactivatedAt:      inst.DeactivatedAt,
	}
	if inst.AfternoonCutoffMinutes != nil {
		override := timeparse.MinutesToHHMM(*inst.AfternoonCutoffMinutes)
		out.CutoffOverride = &override
	}
	return out
}

// List returns instances, optionally filtered by status and name.
func (h *InstanceHandler) List(c *gin.Context) {
	status := models.InstanceStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", models.InstanceStatusPending, models.InstanceStatusActive, models.InstanceStatusRevoked, models.InstanceStatusDeactivated:
	default:
		apierr.Respond(c, apierr.Validation("invalid_status", "unknown status filter"))
		return
	}

	rows, errList := h.svc.List(c.Request.Context(), instance.ListFilter{Status: status, Query: c.Query("q")})
	if errList != nil {
		apierr.Respond(c, errList)
		return
	}
	out := make([]instanceView, 0, len(rows))
	for i := range rows {
		out = append(out, h.view(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"instances": out})
}

// activateRequest carries optional activation choices.
type activateRequest struct {
	DisplayName        *string `json:"display_name"`
	EmploymentTemplate *string `json:"employment_template"`
}

// Activate approves a PENDING or DEACTIVATED instance.
func (h *InstanceHandler) Activate(c *gin.Context) {
	var body activateRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	in := instance.ActivateInput{DisplayName: body.DisplayName}
	if body.EmploymentTemplate != nil {
		template := models.EmploymentTemplate(strings.ToUpper(strings.TrimSpace(*body.EmploymentTemplate)))
		in.Template = &template
	}
	h.respond(c)(h.svc.Activate(c.Request.Context(), c.Param("id"), in))
}

// renameRequest carries a new display name.
type renameRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// Rename changes the display name of an ACTIVE instance.
func (h *InstanceHandler) Rename(c *gin.Context) {
	var body renameRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	h.respond(c)(h.svc.Rename(c.Request.Context(), c.Param("id"), body.DisplayName))
}

// Revoke permanently disables an instance.
func (h *InstanceHandler) Revoke(c *gin.Context) {
	h.respond(c)(h.svc.Revoke(c.Request.Context(), c.Param("id")))
}

// Deactivate suspends an ACTIVE instance.
func (h *InstanceHandler) Deactivate(c *gin.Context) {
	h.respond(c)(h.svc.Deactivate(c.Request.Context(), c.Param("id")))
}

// setTemplateRequest changes template and cutoff override.
type setTemplateRequest struct {
	EmploymentTemplate string  `json:"employment_template" binding:"required"`
	AfternoonCutoff    *string `json:"afternoon_cutoff"`
}

// SetTemplate changes the employment template and cutoff override.
func (h *InstanceHandler) SetTemplate(c *gin.Context) {
	var body setTemplateRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	template := models.EmploymentTemplate(strings.ToUpper(strings.TrimSpace(body.EmploymentTemplate)))
	h.respond(c)(h.svc.SetTemplate(c.Request.Context(), c.Param("id"), template, body.AfternoonCutoff))
}

// ResetToken lets an ACTIVE instance claim a new token.
func (h *InstanceHandler) ResetToken(c *gin.Context) {
	h.respond(c)(h.svc.ResetToken(c.Request.Context(), c.Param("id")))
}

// Delete removes a PENDING instance.
func (h *InstanceHandler) Delete(c *gin.Context) {
	if errDelete := h.svc.Delete(c.Request.Context(), c.Param("id")); errDelete != nil {
		apierr.Respond(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, okResponse)
}

// DeletePending removes every PENDING instance.
func (h *InstanceHandler) DeletePending(c *gin.Context) {
	deleted, errDelete := h.svc.DeletePending(c.Request.Context())
	if errDelete != nil {
		apierr.Respond(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": deleted})
}

// mergeRequest folds sources into target.
type mergeRequest struct {
	TargetID  string   `json:"target_id" binding:"required"`
	SourceIDs []string `json:"source_ids" binding:"required"`
}

// Merge folds duplicate instances into one profile.
func (h *InstanceHandler) Merge(c *gin.Context) {
	var body mergeRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	result, errMerge := h.svc.Merge(c.Request.Context(), body.TargetID, body.SourceIDs)
	if errMerge != nil {
		apierr.Respond(c, errMerge)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"target_id":    result.TargetID,
		"merged_ids":   result.Merged,
		"merged_count": len(result.Merged),
	})
}

// respond renders the outcome of a single-instance transition.
func (h *InstanceHandler) respond(c *gin.Context) func(*models.Instance, error) {
	return func(inst *models.Instance, err error) {
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, h.view(inst))
	}
}
