package timeparse

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestTimeOfDay(t *testing.T) {
	valid := []string{"00:00", "07:45", "23:59"}
	for _, v := range valid {
		got, err := TimeOfDay(strPtr(v))
		if err != nil || got == nil || *got != v {
			t.Fatalf("TimeOfDay(%q) = %v, %v", v, got, err)
		}
	}
	for _, v := range []string{"24:00", "7:45", "12:60", "noon", "12:3"} {
		if _, err := TimeOfDay(strPtr(v)); !errors.Is(err, ErrTimeFormat) {
			t.Fatalf("TimeOfDay(%q) expected ErrTimeFormat, got %v", v, err)
		}
	}
	if got, err := TimeOfDay(strPtr("  ")); got != nil || err != nil {
		t.Fatalf("blank must map to nil, got %v %v", got, err)
	}
	if got, err := TimeOfDay(nil); got != nil || err != nil {
		t.Fatalf("nil must map to nil, got %v %v", got, err)
	}
}

func TestDate(t *testing.T) {
	if _, err := Date("2026-02-28"); err != nil {
		t.Fatalf("expected valid date, got %v", err)
	}
	if _, err := Date("2026-02-30"); !errors.Is(err, ErrDateInvalid) {
		t.Fatalf("expected ErrDateInvalid, got %v", err)
	}
	if _, err := Date("2026-2-3"); !errors.Is(err, ErrDateFormat) {
		t.Fatalf("expected ErrDateFormat, got %v", err)
	}
}

func TestMonthHelpers(t *testing.T) {
	start, end := MonthBounds(2024, 2)
	if days := int(end.Sub(start).Hours() / 24); days != 29 {
		t.Fatalf("expected 29 days in Feb 2024, got %d", days)
	}
	if MonthKey(2026, 3) != "2026-03" {
		t.Fatalf("unexpected month key")
	}
	year, month, err := ParseMonthKey("2026-11")
	if err != nil || year != 2026 || month != 11 {
		t.Fatalf("ParseMonthKey = %d %d %v", year, month, err)
	}
	if err := CheckYearMonth(1999, 1); !errors.Is(err, ErrYearMonth) {
		t.Fatalf("expected year range error")
	}
}

func TestMinutesConversion(t *testing.T) {
	if MinutesToHHMM(17*60) != "17:00" {
		t.Fatalf("unexpected format")
	}
	minutes, err := HHMMToMinutes("16:30")
	if err != nil || minutes != 990 {
		t.Fatalf("HHMMToMinutes = %d %v", minutes, err)
	}
}
