package digest

import (
	"fmt"
	"time"
)

// dayStartHour is when a new work day begins. Runs between midnight and this
// hour still belong to the previous day.
const dayStartHour = 3

// RunDate returns the work day that now falls in, in timezone, as midnight
// local time.
func RunDate(now time.Time, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
	}
	local := now.In(loc)
	if local.Hour() < dayStartHour {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}

// FormatDate renders a run date the way the notification header shows it.
func FormatDate(t time.Time) string {
	return t.Format("Monday, January 02, 2006")
}
