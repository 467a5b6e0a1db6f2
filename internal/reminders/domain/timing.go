package reminders

import (
	"strings"
	"time"
)

const (
	morningHour = 8
	eveningHour = 18

	// DefaultInterval is the fallback for schedule text that matches no
	// known keyword, including empty text.
	DefaultInterval = time.Hour
)

// NextDue derives the next due instant for free-form schedule text. The
// decision table is closed and ordered: "morning" wins over "evening" when
// both appear, and each schedule yields exactly one instant. Wall-clock
// instants that have already passed today roll over to tomorrow.
func NextDue(scheduleText string, now time.Time) time.Time {
	text := strings.ToLower(scheduleText)
	switch {
	case strings.Contains(text, "morning"):
		return nextAtHour(now, morningHour)
	case strings.Contains(text, "evening"):
		return nextAtHour(now, eveningHour)
	default:
		return now.Add(DefaultInterval)
	}
}

func nextAtHour(now time.Time, hour int) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if due.After(now) {
		return due
	}
	return due.AddDate(0, 0, 1)
}
