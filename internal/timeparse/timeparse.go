// Package timeparse validates the wire formats used for attendance:
// calendar dates as YYYY-MM-DD and times of day as HH:MM.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the wire layout for calendar dates.
const DateLayout = "2006-01-02"

// Year bounds accepted for month queries.
const (
	MinYear = 2000
	MaxYear = 2100
)

var (
	timeOfDayRe = regexp.MustCompile(`^(?:[01]\d|2[0-3]):[0-5]\d$`)
	dateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Parse errors.
var (
	ErrTimeFormat  = errors.New("invalid time, expected HH:MM in 00:00-23:59")
	ErrDateFormat  = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrDateInvalid = errors.New("invalid calendar date")
	ErrYearMonth   = errors.New("year or month out of range")
)

// TimeOfDay normalizes an optional HH:MM value. Nil and blank values map to nil.
func TimeOfDay(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if !timeOfDayRe.MatchString(trimmed) {
		return nil, ErrTimeFormat
	}
	return &trimmed, nil
}

// Date parses a YYYY-MM-DD string into a UTC midnight time.
func Date(value string) (time.Time, error) {
	if !dateRe.MatchString(value) {
		return time.Time{}, ErrDateFormat
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, ErrDateInvalid
	}
	return parsed, nil
}

// CheckYearMonth validates a month query.
func CheckYearMonth(year, month int) error {
	if year < MinYear || year > MaxYear || month < 1 || month > 12 {
		return ErrYearMonth
	}
	return nil
}

// MonthBounds returns the first day of the month and the first day of the next one.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// MonthKey formats a year/month pair as YYYY-MM.
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParseMonthKey parses a YYYY-MM string.
func ParseMonthKey(value string) (int, int, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, ErrYearMonth
	}
	year, month := parsed.Year(), int(parsed.Month())
	if errCheck := CheckYearMonth(year, month); errCheck != nil {
		return 0, 0, errCheck
	}
	return year, month, nil
}

// MinutesToHHMM formats minutes after midnight as HH:MM.
func MinutesToHHMM(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// HHMMToMinutes parses HH:MM into minutes after midnight.
func HHMMToMinutes(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if !timeOfDayRe.MatchString(trimmed) {
		return 0, ErrTimeFormat
	}
	return int(trimmed[0]-'0')*600 + int(trimmed[1]-'0')*60 + int(trimmed[3]-'0')*10 + int(trimmed[4]-'0'), nil
}
