package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/attendance"
	apihttp "github.com/timecard-works/timecard/internal/http"
	front "github.com/timecard-works/timecard/internal/http/api/front/handlers"
)

// AttendanceHandler lets the admin read and correct any instance's attendance.
type AttendanceHandler struct {
	ledger *attendance.Ledger
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(ledger *attendance.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger}
}

// Month returns the month view of one instance.
func (h *AttendanceHandler) Month(c *gin.Context) {
	instanceID := strings.TrimSpace(c.Query("instance_id"))
	if instanceID == "" {
		apierr.Respond(c, apierr.Validation("missing_field", "instance_id is required"))
		return
	}
	year, errYear := apihttp.QueryInt(c, "year")
	if errYear != nil {
		apierr.Respond(c, errYear)
		return
	}
	month, errMonth := apihttp.QueryInt(c, "month")
	if errMonth != nil {
		apierr.Respond(c, errMonth)
		return
	}

	view, errGet := h.ledger.GetMonth(c.Request.Context(), instanceID, year, month)
	if errGet != nil {
		apierr.Respond(c, errGet)
		return
	}
	c.JSON(http.StatusOK, front.MonthJSON(view))
}

// adminUpsertRequest writes one day for any instance.
type adminUpsertRequest struct {
	InstanceID    string  `json:"instance_id" binding:"required"`
	Date          string  `json:"date" binding:"required"`
	ArrivalTime   *string `json:"arrival_time"`
	DepartureTime *string `json:"departure_time"`
}

// Upsert corrects one day. Locked months are still refused.
func (h *AttendanceHandler) Upsert(c *gin.Context) {
	var body adminUpsertRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	day, errUpsert := h.ledger.Upsert(c.Request.Context(), attendance.UpsertInput{
		InstanceID: strings.TrimSpace(body.InstanceID),
		Date:       body.Date,
		Arrival:    body.ArrivalTime,
		Departure:  body.DepartureTime,
		Source:     attendance.SourceAdmin,
	})
	if errUpsert != nil {
		apierr.Respond(c, errUpsert)
		return
	}
	c.JSON(http.StatusOK, front.DayJSON(day))
}

// lockRequest names a month of one instance.
type lockRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Year       int    `json:"year" binding:"required"`
	Month      int    `json:"month" binding:"required"`
}

// Lock freezes a month. Locking twice is a no-op.
func (h *AttendanceHandler) Lock(c *gin.Context) {
	sess, errSession := adminSession(c)
	if errSession != nil {
		apierr.Respond(c, errSession)
		return
	}
	var body lockRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	if errLock := h.ledger.Lock(c.Request.Context(), strings.TrimSpace(body.InstanceID), body.Year, body.Month, sess.Username); errLock != nil {
		apierr.Respond(c, errLock)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "locked": true})
}

// Unlock reopens a month. Unlocking an open month is a no-op.
func (h *AttendanceHandler) Unlock(c *gin.Context) {
	var body lockRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}
	if errUnlock := h.ledger.Unlock(c.Request.Context(), strings.TrimSpace(body.InstanceID), body.Year, body.Month); errUnlock != nil {
		apierr.Respond(c, errUnlock)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "locked": false})
}
