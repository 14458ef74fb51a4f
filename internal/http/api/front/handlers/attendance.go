package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/attendance"
	apihttp "github.com/timecard-works/timecard/internal/http"
)

// AttendanceHandler serves the bearer-authenticated attendance endpoints.
type AttendanceHandler struct {
	ledger *attendance.Ledger
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(ledger *attendance.Ledger) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger}
}

// Month returns every day of the requested month for the caller's profile.
func (h *AttendanceHandler) Month(c *gin.Context) {
	principal, ok := apihttp.PrincipalFrom(c)
	if !ok {
		apierr.Respond(c, apierr.Unauthorized("invalid_token", "invalid or missing bearer token"))
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

	view, errGet := h.ledger.GetMonth(c.Request.Context(), principal.ProfileID, year, month)
	if errGet != nil {
		apierr.Respond(c, errGet)
		return
	}
	c.JSON(http.StatusOK, MonthJSON(view))
}

// upsertRequest writes one day. Empty or null times clear the field.
type upsertRequest struct {
	Date          string  `json:"date" binding:"required"`
	ArrivalTime   *string `json:"arrival_time"`
	DepartureTime *string `json:"departure_time"`
}

// Upsert records arrival and departure for one day.
func (h *AttendanceHandler) Upsert(c *gin.Context) {
	principal, ok := apihttp.PrincipalFrom(c)
	if !ok {
		apierr.Respond(c, apierr.Unauthorized("invalid_token", "invalid or missing bearer token"))
		return
	}
	var body upsertRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}

	day, errUpsert := h.ledger.Upsert(c.Request.Context(), attendance.UpsertInput{
		InstanceID:    principal.ProfileID,
		Date:          body.Date,
		Arrival:       body.ArrivalTime,
		Departure:     body.DepartureTime,
		RequireActive: true,
		Source:        attendance.SourceDevice,
	})
	if errUpsert != nil {
		apierr.Respond(c, errUpsert)
		return
	}
	c.JSON(http.StatusOK, DayJSON(day))
}

// DayJSON renders one attendance day.
func DayJSON(day attendance.Day) gin.H {
	return gin.H{
		"date":                   day.Date,
		"arrival_time":           day.Arrival,
		"departure_time":         day.Departure,
		"planned_arrival_time":   day.PlannedArrival,
		"planned_departure_time": day.PlannedDeparture,
	}
}

// MonthJSON renders a month view.
func MonthJSON(view attendance.Month) gin.H {
	days := make([]gin.H, 0, len(view.Days))
	for _, day := range view.Days {
		days = append(days, DayJSON(day))
	}
	return gin.H{
		"year":                  view.Year,
		"month":                 view.Month,
		"instance_display_name": view.DisplayName,
		"locked":                view.Locked,
		"days":                  days,
	}
}
