// Package timeparse turns free-form reminder text into concrete trigger times.
//
// Extraction and resolution are both driven by ordered rule tables: the first
// rule that matches wins, and nothing ranks rules beyond their position.
package timeparse

import (
	"strings"
	"time"
)

// ReminderInfo is a resolved absolute trigger time.
type ReminderInfo struct {
	Date        time.Time `json:"date"`
	DisplayText string    `json:"display_text"`
	// IsValid is false for low-confidence guesses (a bare clock time with no
	// day reference). It never signals an error.
	IsValid bool `json:"is_valid"`
}

// Match identifies the extraction rule that fired and the text it consumed.
type Match struct {
	Pattern string `json:"pattern"`
	Text    string `json:"text"`
}

// Extraction is the result of scanning free text for a time expression.
type Extraction struct {
	HasTime    bool          `json:"has_time"`
	TimeString string        `json:"time_string,omitempty"`
	Match      *Match        `json:"match,omitempty"`
	Reminder   *ReminderInfo `json:"reminder,omitempty"`
}

// Parser resolves time expressions relative to Now.
type Parser struct {
	// Now returns the current time; injectable for testing. The location of
	// the returned time is used for all calendar arithmetic.
	Now func() time.Time
}

// New returns a Parser bound to the wall clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// ExtractTimeFromText scans text against the ordered extraction table and
// resolves the first match. HasTime is false and Reminder nil when nothing
// matches.
func (p *Parser) ExtractTimeFromText(text string) Extraction {
	for _, rule := range extractionRules {
		loc := rule.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		matched := strings.TrimSpace(text[loc[0]:loc[1]])
		if rule.relative {
			if _, ok := resolveRelative(normalize(matched), p.now()); !ok {
				continue
			}
		}
		info := p.ParseReminderTime(matched)
		return Extraction{
			HasTime:    true,
			TimeString: matched,
			Match:      &Match{Pattern: rule.id, Text: matched},
			Reminder:   &info,
		}
	}
	return Extraction{}
}

// ParseReminderTime resolves a time phrase into an absolute date.
//
// Relative offsets ("in 5 minutes") short-circuit everything else. Otherwise
// a time of day is extracted (default 09:00) and combined with the first
// matching date reference. With no date reference the result is today, or
// tomorrow when today's instant has passed, flagged IsValid=false.
func (p *Parser) ParseReminderTime(timeString string) ReminderInfo {
	now := p.now()
	text := normalize(timeString)

	clock := extractClock(text)

	if info, ok := resolveRelative(text, now); ok {
		return info
	}

	res := &resolution{
		now:   now,
		text:  text,
		clock: clock,
	}
	for _, rule := range dateRules {
		if rule.resolve(res) {
			res.matched = true
			break
		}
	}

	if !res.matched {
		at := atClock(now, res.clock)
		if at.After(now) {
			return ReminderInfo{Date: at, DisplayText: display("Today", res.clock), IsValid: false}
		}
		at = atClock(now.AddDate(0, 0, 1), res.clock)
		return ReminderInfo{Date: at, DisplayText: display("Tomorrow", res.clock), IsValid: false}
	}

	at := atClock(res.day, res.clock)
	label := res.label
	if !at.After(now) && (label == labelToday || label == labelTonight) {
		at = atClock(res.day.AddDate(0, 0, 1), res.clock)
		label = labelTomorrow
	}
	return ReminderInfo{Date: at, DisplayText: display(label, res.clock), IsValid: true}
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(s), " ")
}

// atClock returns day's calendar date at the given clock time.
func atClock(day time.Time, c clockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, day.Location())
}
