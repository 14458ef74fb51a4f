package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/settings"
	"github.com/timecard-works/timecard/internal/timeparse"
	"gorm.io/gorm"
)

// SettingsHandler reads and writes global settings.
type SettingsHandler struct {
	db    *gorm.DB
	store *settings.Store
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB, store *settings.Store) *SettingsHandler {
	return &SettingsHandler{db: db, store: store}
}

// Get returns the global settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"afternoon_cutoff": timeparse.MinutesToHHMM(h.store.AfternoonCutoffMinutes()),
	})
}

// settingsRequest updates the global settings.
type settingsRequest struct {
	AfternoonCutoff string `json:"afternoon_cutoff" binding:"required"`
}

// Put updates the global afternoon cutoff.
func (h *SettingsHandler) Put(c *gin.Context) {
	var body settingsRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	minutes, errParse := timeparse.HHMMToMinutes(body.AfternoonCutoff)
	if errParse != nil {
		apierr.Respond(c, apierr.Validation("invalid_time", errParse.Error()))
		return
	}
	if errPut := h.store.Put(c.Request.Context(), h.db, settings.AfternoonCutoffKey, minutes); errPut != nil {
		apierr.Respond(c, errPut)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"afternoon_cutoff": timeparse.MinutesToHHMM(h.store.AfternoonCutoffMinutes()),
	})
}
