package timeparse

import "fmt"

const (
	labelToday    = "Today"
	labelTonight  = "Tonight"
	labelTomorrow = "Tomorrow"
)

// FormatClock renders a 24h clock time as "3 PM" or "3:05 PM".
func FormatClock(hour, minute int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	if minute == 0 {
		return fmt.Sprintf("%d %s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, suffix)
}

func display(label string, c clockTime) string {
	return label + " at " + FormatClock(c.hour, c.minute)
}

func relativeDisplay(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("In 1 %s", unit)
	}
	return fmt.Sprintf("In %d %ss", n, unit)
}
