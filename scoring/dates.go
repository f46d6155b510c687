package scoring

import (
	"fmt"
	"time"
)

// DateLayout is the fixed-width calendar date format used for every round and completion
// date. Zero padding keeps lexicographic and chronological order identical.
const DateLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD calendar date. The result is midnight UTC so that calendar
// arithmetic never crosses a DST transition.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders the wall-clock calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today is the calendar date of now as seen in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return FormatDate(now.In(loc))
}

// DaysRemaining counts the days left until the end of the given inclusive end date,
// rounded up and floored at zero. An unparsable end date yields zero.
func DaysRemaining(endDate string, now time.Time) int {
	end, err := ParseDate(endDate)
	if err != nil {
		return 0
	}
	endOfDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, now.Location())
	diff := endOfDay.Sub(now)
	if diff <= 0 {
		return 0
	}
	day := 24 * time.Hour
	days := int(diff / day)
	if diff%day != 0 {
		days++
	}
	return days
}
