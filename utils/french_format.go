package utils

import (
	"fmt"
	"strconv"
	"time"
)

var frenchMonths = []string{
	"janvier",
	"février",
	"mars",
	"avril",
	"mai",
	"juin",
	"juillet",
	"août",
	"septembre",
	"octobre",
	"novembre",
	"décembre",
}

// MonthLabel returns the session label for a month, e.g. "Janvier 2026".
func MonthLabel(year int, month time.Month) string {
	idx := int(month) - 1
	if idx < 0 || idx >= len(frenchMonths) {
		return strconv.Itoa(year)
	}
	name := frenchMonths[idx]
	runes := []rune(name)
	if runes[0] >= 'a' && runes[0] <= 'z' {
		runes[0] -= 'a' - 'A'
	}
	return string(runes) + " " + strconv.Itoa(year)
}

// FormatFrenchDate returns the date as "26 mars 2026" in loc.
func FormatFrenchDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return strconv.Itoa(t.Day()) + " " + frenchMonths[int(t.Month())-1] + " " + strconv.Itoa(t.Year())
}

// FormatFrenchDateTime returns "26 mars 2026 à 15h00" in loc.
func FormatFrenchDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%s à %02dh%02d", FormatFrenchDate(t, nil), t.Hour(), t.Minute())
}

// FormatFrenchDatePtr formats pointer values.
func FormatFrenchDatePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return FormatFrenchDate(*t, loc)
}
