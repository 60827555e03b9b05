package schedule

import (
	"fmt"
	"time"
)

// DayFormat is the calendar date format used as the grouping key
const DayFormat = "2006-01-02"

// Status is the display status derived from a record's date relative to now.
// It is computed per view, never persisted.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Classify derives the display status and human label for a calendar date.
// The clock is always passed in so callers (and tests) control "today".
//
// Same day yields confirmed/"Today", the next day pending/"Tomorrow", dates
// within a week a short weekday label, and anything further a full date with
// the year appended only when it differs from the current one. Past dates are
// completed. An unparseable date classifies as pending with an empty label.
func Classify(day string, now time.Time) (Status, string) {
	d, err := time.ParseInLocation(DayFormat, day, now.Location())
	if err != nil {
		return StatusPending, ""
	}

	today := midnight(now)
	diff := daysBetween(today, midnight(d))

	switch {
	case diff == 0:
		return StatusConfirmed, "Today"
	case diff == 1:
		return StatusPending, "Tomorrow"
	case diff < 0:
		return StatusCompleted, fullLabel(d, now)
	case diff <= 7:
		return StatusPending, d.Format("Mon, Jan 2")
	default:
		return StatusPending, fullLabel(d, now)
	}
}

func fullLabel(d, now time.Time) string {
	if d.Year() != now.Year() {
		return d.Format("Monday, January 2, 2006")
	}
	return d.Format("Monday, January 2")
}

// midnight zeroes the time-of-day components, keeping the location. Both sides
// of every date comparison must go through this to avoid off-by-one-day
// classification.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b (negative when b is earlier).
// Dividing the duration directly would drift across DST changes, so count via
// the civil date.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// ParseTimeOfDay parses an "hh:mm AM/PM" time-of-day string into minutes
// since midnight. The bool reports whether the string was parseable.
func ParseTimeOfDay(s string) (int, bool) {
	t, err := time.Parse("3:04 PM", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// FormatDay renders a time as a grouping key
func FormatDay(t time.Time) string {
	return t.Format(DayFormat)
}

// ParseDay parses a grouping key, failing loudly for API validation paths
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayFormat, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", day)
	}
	return t, nil
}
