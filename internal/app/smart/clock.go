package smart

import (
	"time"
)

type clock struct {
	hour, minute int
}

// parseClock reads "HH:MM", falling back to def and then to 09:00.
func parseClock(s, def string) clock {
	for _, v := range []string{s, def} {
		if t, err := time.Parse("15:04", v); err == nil {
			return clock{hour: t.Hour(), minute: t.Minute()}
		}
	}
	return clock{hour: 9}
}

// nextOccurrence returns the first instant at c strictly after now.
func nextOccurrence(now time.Time, c clock) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func dayKey(slot string, now time.Time) string {
	return slot + "-" + now.Format("2006-01-02")
}
