package timeparse

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultHour  = 9
	tonightFloor = 20
)

type clockTime struct {
	hour, minute int
	// explicit is true when the text named a clock time rather than a part
	// of day or nothing at all.
	explicit bool
}

type clockRule func(text string) (clockTime, bool)

var (
	reClock12    = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	reClock24    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	reAtHour     = regexp.MustCompile(`\b(?:at|by|around)\s+(\d{1,2})\b`)
	reNoon       = regexp.MustCompile(`\bnoon\b`)
	reMidnight   = regexp.MustCompile(`\bmidnight\b`)
	reQuarter    = regexp.MustCompile(`\b(quarter|half)\s+(past|to)\s+(\d{1,2})\b`)
	reOClock     = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	reTimeOfDay  = regexp.MustCompile(`\b(?:(early|late)\s+)?(morning|afternoon|evening|night)\b`)
	reLaterHints = regexp.MustCompile(`\b(?:afternoon|evening|night|tonight)\b`)
	reMorning    = regexp.MustCompile(`\bmorning\b`)
)

// clockRules is ordered: explicit clock time, named special time,
// quarter/half past, o'clock, part-of-day keyword.
var clockRules = []clockRule{
	clock12h,
	clock24h,
	clockAtHour,
	clockNamed,
	clockQuarterHalf,
	clockOClock,
	clockTimeOfDay,
}

func extractClock(text string) clockTime {
	for _, rule := range clockRules {
		if c, ok := rule(text); ok {
			return c
		}
	}
	return clockTime{hour: defaultHour}
}

func clock12h(text string) (clockTime, bool) {
	m := reClock12.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	h, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if h < 1 || h > 12 || minute > 59 {
		return clockTime{}, false
	}
	h %= 12
	if strings.HasPrefix(m[3], "p") {
		h += 12
	}
	return clockTime{hour: h, minute: minute, explicit: true}, true
}

func clock24h(text string) (clockTime, bool) {
	m := reClock24.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if h > 23 || minute > 59 {
		return clockTime{}, false
	}
	if h >= 1 && h <= 12 && !strings.HasPrefix(m[1], "0") {
		h = inferMeridiem(h, text)
	}
	return clockTime{hour: h, minute: minute, explicit: true}, true
}

func clockAtHour(text string) (clockTime, bool) {
	m := reAtHour.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	h, _ := strconv.Atoi(m[1])
	if h < 1 || h > 12 {
		if h == 0 || (h > 12 && h <= 23) {
			return clockTime{hour: h, explicit: true}, true
		}
		return clockTime{}, false
	}
	return clockTime{hour: inferMeridiem(h, text), explicit: true}, true
}

func clockNamed(text string) (clockTime, bool) {
	if reNoon.MatchString(text) {
		return clockTime{hour: 12, explicit: true}, true
	}
	if reMidnight.MatchString(text) {
		return clockTime{hour: 0, explicit: true}, true
	}
	return clockTime{}, false
}

func clockQuarterHalf(text string) (clockTime, bool) {
	m := reQuarter.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	h, _ := strconv.Atoi(m[3])
	if h < 1 || h > 12 {
		return clockTime{}, false
	}
	offset := 15
	if m[1] == "half" {
		offset = 30
	}
	minute := offset
	if m[2] == "to" {
		minute = 60 - offset
		h--
		if h == 0 {
			h = 12
		}
	}
	return clockTime{hour: inferMeridiem(h, text), minute: minute, explicit: true}, true
}

func clockOClock(text string) (clockTime, bool) {
	m := reOClock.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	h, _ := strconv.Atoi(m[1])
	if h < 1 || h > 12 {
		return clockTime{}, false
	}
	return clockTime{hour: inferMeridiem(h, text), explicit: true}, true
}

var timeOfDayDefaults = map[string][3]int{
	// part of day: {default, early, late}
	"morning":   {9, 6, 11},
	"afternoon": {14, 13, 17},
	"evening":   {18, 17, 21},
	"night":     {20, 20, 20},
}

func clockTimeOfDay(text string) (clockTime, bool) {
	m := reTimeOfDay.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	hours := timeOfDayDefaults[m[2]]
	switch m[1] {
	case "early":
		return clockTime{hour: hours[1]}, true
	case "late":
		return clockTime{hour: hours[2]}, true
	default:
		return clockTime{hour: hours[0]}, true
	}
}

// inferMeridiem places a 1-12 hour without am/pm. A later part of day in the
// text means PM; "morning" means AM; otherwise 1-6 are read as afternoon
// hours since reminders at 1-6 AM are rare.
func inferMeridiem(h int, text string) int {
	if h == 12 {
		return 12
	}
	if reLaterHints.MatchString(text) {
		return h + 12
	}
	if reMorning.MatchString(text) {
		return h
	}
	if h >= 1 && h <= 6 {
		return h + 12
	}
	return h
}
