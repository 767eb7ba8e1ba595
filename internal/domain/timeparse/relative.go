package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type relativeRule struct {
	re *regexp.Regexp
	// amount returns the count and unit for a match.
	amount func(m []string) (int, string)
}

const relUnit = `(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)`

var relativeRules = []relativeRule{
	{
		re:     regexp.MustCompile(`\b(?:in|after)\s+(\d+)\s*` + relUnit + `\b`),
		amount: countAndUnit,
	},
	{
		re:     regexp.MustCompile(`\b(\d+)\s*` + relUnit + `\s+from\s+now\b`),
		amount: countAndUnit,
	},
	{
		re:     regexp.MustCompile(`\bwithin\s+(?:the\s+next\s+)?(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`),
		amount: countAndUnit,
	},
	{
		re:     regexp.MustCompile(`\bin\s+half\s+an?\s+hour\b`),
		amount: func([]string) (int, string) { return 30, "minute" },
	},
	{
		re: regexp.MustCompile(`\bin\s+(?:an?|one)\s+(hour|minute|week|month)\b`),
		amount: func(m []string) (int, string) {
			return 1, m[1]
		},
	},
}

// maxRelative caps each unit at roughly a hundred years so the offset
// arithmetic cannot overflow.
var maxRelative = map[string]int{
	"minute": 100 * 366 * 24 * 60,
	"hour":   100 * 366 * 24,
	"day":    100 * 366,
	"week":   100 * 53,
	"month":  100 * 12,
}

func countAndUnit(m []string) (int, string) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ""
	}
	return n, canonicalUnit(m[2])
}

func canonicalUnit(u string) string {
	switch {
	case strings.HasPrefix(u, "min"):
		return "minute"
	case strings.HasPrefix(u, "h"):
		return "hour"
	case strings.HasPrefix(u, "d"):
		return "day"
	case strings.HasPrefix(u, "w"):
		return "week"
	case strings.HasPrefix(u, "mo"):
		return "month"
	}
	return u
}

// resolveRelative computes now + offset for relative phrases. The display
// text is complete on its own and never gets an "at" suffix.
func resolveRelative(text string, now time.Time) (ReminderInfo, bool) {
	for _, rule := range relativeRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, unit := rule.amount(m)
		if n <= 0 || n > maxRelative[unit] {
			continue
		}
		var at time.Time
		switch unit {
		case "minute":
			at = now.Add(time.Duration(n) * time.Minute)
		case "hour":
			at = now.Add(time.Duration(n) * time.Hour)
		case "day":
			at = now.AddDate(0, 0, n)
		case "week":
			at = now.AddDate(0, 0, 7*n)
		case "month":
			at = now.AddDate(0, n, 0)
		default:
			continue
		}
		if !at.After(now) {
			continue
		}
		return ReminderInfo{Date: at, DisplayText: relativeDisplay(n, unit), IsValid: true}, true
	}
	return ReminderInfo{}, false
}
