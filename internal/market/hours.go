package market

import (
	"time"
)

// Calendar classifies timestamps against a best-effort CME trading
// calendar: a fixed daily maintenance window, the weekend gap, and a small
// set of known full-closure holidays. It is heuristic labeling only, not
// authoritative exchange calendar data.
type Calendar struct {
	loc *time.Location
}

// DefaultTimezone is the exchange-local zone used when none is configured.
const DefaultTimezone = "America/Chicago"

// NewCalendar builds a calendar for the exchange-local time zone name.
// An empty or unknown name falls back to America/Chicago.
func NewCalendar(timezone string) *Calendar {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	return &Calendar{loc: loc}
}

// Location returns the calendar's exchange-local time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// knownHolidays lists full trading closures as month/day pairs. Floating
// holidays that depend on the year (Good Friday, Thanksgiving) are matched
// by weekday rules in isHoliday.
var knownHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.July, 4},      // Independence Day
	{time.December, 25}, // Christmas Day
}

// isHoliday reports whether the exchange-local date is a known full
// closure.
func (c *Calendar) isHoliday(local time.Time) bool {
	for _, h := range knownHolidays {
		if local.Month() == h.month && local.Day() == h.day {
			return true
		}
	}
	// Thanksgiving: fourth Thursday of November.
	if local.Month() == time.November && local.Weekday() == time.Thursday &&
		local.Day() >= 22 && local.Day() <= 28 {
		return true
	}
	return false
}

// IsRegularHours reports whether the timestamp falls inside the trading
// session: not a known holiday, not within the 16:00-17:00 daily
// maintenance window, and not within the Saturday-16:00 to Sunday-17:00
// weekend gap, all evaluated in the exchange's local time zone.
func (c *Calendar) IsRegularHours(t time.Time) bool {
	local := t.In(c.loc)

	if c.isHoliday(local) {
		return false
	}

	hour := local.Hour()

	switch local.Weekday() {
	case time.Saturday:
		if hour >= 16 {
			return false
		}
	case time.Sunday:
		if hour < 17 {
			return false
		}
	}

	// Daily maintenance break, 16:00-17:00 exchange-local.
	if hour == 16 {
		return false
	}

	return true
}
