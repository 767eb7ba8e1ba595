package timeparse

import "regexp"

const (
	weekdayAlt  = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	weekdayPre  = `(?:(?:next|this|coming|following)\s+)?`
	monthAlt    = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	dayRefAlt   = `day\s+after\s+tomorrow|later\s+today|today|tonight|tomm?orr?ow|tmrw|tmr|this\s+weekend|next\s+week|next\s+month`
	todAlt      = `(?:early\s+|late\s+)?(?:morning|afternoon|evening|night)`
	meridiemAlt = `(?:am\b|pm\b|a\.m\.|p\.m\.)`
	relUnitAlt  = `(?:minutes?|mins?|hours?|hrs?|days?|weeks?|months?)`
	clockAlt    = `(?:\d{1,2}(?::\d{2})?\s*` + meridiemAlt + `|\d{1,2}:\d{2}|noon|midnight|\d{1,2}\s*o'?clock|(?:quarter|half)\s+(?:past|to)\s+\d{1,2})`
	atAlt       = `(?:(?:at|by|around)\s+)?`
)

type extractionRule struct {
	id string
	re *regexp.Regexp
	// relative rules only count as a hit when the offset resolves.
	relative bool
}

func rule(id, pattern string) extractionRule {
	return extractionRule{id: id, re: regexp.MustCompile(`(?i)` + pattern)}
}

func relRule(id, pattern string) extractionRule {
	r := rule(id, pattern)
	r.relative = true
	return r
}

// extractionRules is ordered most specific first. ExtractTimeFromText stops
// at the first rule that matches anywhere in the text.
var extractionRules = []extractionRule{
	// Relative offsets.
	relRule("relative_in", `\b(?:in|after)\s+\d+\s*`+relUnitAlt+`\b`),
	relRule("relative_from_now", `\b\d+\s*`+relUnitAlt+`\s+from\s+now\b`),
	relRule("relative_within", `\bwithin\s+(?:the\s+next\s+)?\d+\s*(?:minutes?|mins?|hours?|hrs?)\b`),
	rule("relative_half_hour", `\bin\s+half\s+an?\s+hour\b`),
	rule("relative_article", `\bin\s+(?:an?|one)\s+(?:hour|minute|week|month)\b`),

	// Day or weekday combined with a clock time or part of day.
	rule("day_ref_clock", `\b(?:`+dayRefAlt+`)\s+`+atAlt+clockAlt),
	rule("clock_day_ref", `\b`+atAlt+clockAlt+`\s+(?:`+dayRefAlt+`)\b`),
	rule("weekday_clock", `\b`+weekdayPre+`(?:`+weekdayAlt+`)\s+`+atAlt+clockAlt),
	rule("clock_weekday", `\b`+atAlt+clockAlt+`\s+(?:on\s+)?`+weekdayPre+`(?:`+weekdayAlt+`)\b`),
	rule("day_ref_time_of_day", `\b(?:day\s+after\s+tomorrow|tomm?orr?ow|tmrw|tmr|today)\s+`+todAlt+`\b`),
	rule("weekday_time_of_day", `\b`+weekdayPre+`(?:`+weekdayAlt+`)\s+`+todAlt+`\b`),
	rule("date_clock", `\b(?:`+monthAlt+`)\.?\s+\d{1,2}(?:st|nd|rd|th)?\s+`+atAlt+clockAlt),

	// Absolute clock times.
	rule("clock_12h", `\b`+atAlt+`\d{1,2}(?::\d{2})?\s*`+meridiemAlt),
	rule("clock_24h", `\b`+atAlt+`\d{1,2}:\d{2}\b`),
	rule("clock_named", `\b`+atAlt+`(?:noon|midnight)\b`),
	rule("clock_quarter_half", `\b(?:quarter|half)\s+(?:past|to)\s+\d{1,2}\b`),
	rule("clock_oclock", `\b\d{1,2}\s*o'?clock\b`),
	rule("clock_at_hour", `\b(?:at|around)\s+\d{1,2}\b`),

	// Day references.
	rule("day_ref", `\b(?:`+dayRefAlt+`)\b`),

	// Weekdays.
	rule("weekday_prefixed", `\b(?:next|this|coming|following)\s+(?:`+weekdayAlt+`)\b`),
	rule("weekday", `\b(?:`+weekdayAlt+`)\b`),

	// Part of day.
	rule("time_of_day", `\b`+todAlt+`\b`),

	// Calendar dates.
	rule("calendar_date", `\b(?:`+monthAlt+`)\.?\s+\d{1,2}(?:st|nd|rd|th)?\b`),
	rule("calendar_day_of_month", `\b\d{1,2}(?:st|nd|rd|th)?\s+of\s+(?:`+monthAlt+`)\b`),

	// Deadlines.
	rule("deadline", `\b(?:eod|eow|end\s+of\s+(?:the\s+)?(?:day|week))\b`),
}

// PatternIDs lists extraction rule ids in priority order.
func PatternIDs() []string {
	ids := make([]string, len(extractionRules))
	for i, r := range extractionRules {
		ids[i] = r.id
	}
	return ids
}
