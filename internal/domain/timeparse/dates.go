package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// resolution accumulates the outcome of the date-reference rules.
type resolution struct {
	now     time.Time
	text    string
	clock   clockTime
	day     time.Time
	label   string
	matched bool
}

func (r *resolution) set(day time.Time, label string) bool {
	r.day = day
	r.label = label
	return true
}

type dateRule struct {
	name    string
	resolve func(r *resolution) bool
}

var (
	reDayAfterTomorrow = regexp.MustCompile(`\bday after (?:tomm?orr?ow|tmrw|tmr)\b`)
	reToday            = regexp.MustCompile(`\b(?:later )?today\b`)
	reTonight          = regexp.MustCompile(`\btonight\b`)
	reTomorrow         = regexp.MustCompile(`\b(?:tomm?orr?ow|tmrw|tmr|2morrow)\b`)
	reNextWeek         = regexp.MustCompile(`\bnext week\b`)
	reNextMonth        = regexp.MustCompile(`\bnext month\b`)
	reWeekend          = regexp.MustCompile(`\b(?:this|the) weekend\b`)
	reEOD              = regexp.MustCompile(`\b(?:eod|end of (?:the )?day)\b`)
	reEOW              = regexp.MustCompile(`\b(?:eow|end of (?:the )?week)\b`)
	reWeekdayPrefixed  = regexp.MustCompile(`\b(next|this|coming|following) (` + weekdayAlt + `)\b`)
	reWeekday          = regexp.MustCompile(`\b(` + weekdayAlt + `)\b`)
	reMonthDay         = regexp.MustCompile(`\b(` + monthAlt + `)\.? (\d{1,2})(?:st|nd|rd|th)?\b`)
	reDayOfMonth       = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)? of (` + monthAlt + `)\b`)
)

// dateRules is ordered; the first rule that resolves wins.
var dateRules = []dateRule{
	{"day_after_tomorrow", func(r *resolution) bool {
		if !reDayAfterTomorrow.MatchString(r.text) {
			return false
		}
		day := r.now.AddDate(0, 0, 2)
		return r.set(day, day.Weekday().String())
	}},
	{"today", func(r *resolution) bool {
		if !reToday.MatchString(r.text) {
			return false
		}
		return r.set(r.now, labelToday)
	}},
	{"tonight", func(r *resolution) bool {
		if !reTonight.MatchString(r.text) {
			return false
		}
		// An explicit afternoon/evening clock time stands; anything earlier
		// is raised to the evening floor.
		if !r.clock.explicit || r.clock.hour < 12 {
			if r.clock.hour < tonightFloor {
				r.clock = clockTime{hour: tonightFloor, explicit: r.clock.explicit}
			}
		}
		return r.set(r.now, labelTonight)
	}},
	{"tomorrow", func(r *resolution) bool {
		if !reTomorrow.MatchString(r.text) {
			return false
		}
		return r.set(r.now.AddDate(0, 0, 1), labelTomorrow)
	}},
	{"next_week", func(r *resolution) bool {
		if !reNextWeek.MatchString(r.text) {
			return false
		}
		return r.set(r.now.AddDate(0, 0, 7), "Next week")
	}},
	{"next_month", func(r *resolution) bool {
		if !reNextMonth.MatchString(r.text) {
			return false
		}
		return r.set(r.now.AddDate(0, 1, 0), "Next month")
	}},
	{"this_weekend", func(r *resolution) bool {
		if !reWeekend.MatchString(r.text) {
			return false
		}
		days := (int(time.Saturday) - int(r.now.Weekday()) + 7) % 7
		if r.now.Weekday() == time.Sunday {
			days = 6
		}
		day := r.now.AddDate(0, 0, days)
		if days == 0 {
			return r.set(day, labelToday)
		}
		return r.set(day, time.Saturday.String())
	}},
	{"end_of_day", func(r *resolution) bool {
		if !reEOD.MatchString(r.text) {
			return false
		}
		r.clock = clockTime{hour: 17, explicit: true}
		return r.set(r.now, labelToday)
	}},
	{"end_of_week", func(r *resolution) bool {
		if !reEOW.MatchString(r.text) {
			return false
		}
		r.clock = clockTime{hour: 17, explicit: true}
		days := (int(time.Friday) - int(r.now.Weekday()) + 7) % 7
		day := r.now.AddDate(0, 0, days)
		if !atClock(day, r.clock).After(r.now) {
			day = day.AddDate(0, 0, 7)
		}
		return r.set(day, time.Friday.String())
	}},
	{"weekday_prefixed", func(r *resolution) bool {
		m := reWeekdayPrefixed.FindStringSubmatch(r.text)
		if m == nil {
			return false
		}
		target := weekdays[m[2]]
		day := nextWeekday(r.now, target)
		label := target.String()
		if m[1] == "next" {
			day = day.AddDate(0, 0, 7)
			label = "Next " + label
		}
		return r.set(day, label)
	}},
	{"weekday", func(r *resolution) bool {
		m := reWeekday.FindStringSubmatch(r.text)
		if m == nil {
			return false
		}
		target := weekdays[m[1]]
		return r.set(nextWeekday(r.now, target), target.String())
	}},
	{"calendar_date", func(r *resolution) bool {
		if m := reMonthDay.FindStringSubmatch(r.text); m != nil {
			return r.calendarDate(m[1], m[2])
		}
		if m := reDayOfMonth.FindStringSubmatch(r.text); m != nil {
			return r.calendarDate(m[2], m[1])
		}
		return false
	}},
	{"noon", func(r *resolution) bool {
		if !reNoon.MatchString(r.text) {
			return false
		}
		return r.set(r.now, labelToday)
	}},
	{"midnight", func(r *resolution) bool {
		if !reMidnight.MatchString(r.text) {
			return false
		}
		return r.set(r.now.AddDate(0, 0, 1), labelTomorrow)
	}},
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// nextWeekday returns the next date strictly after now's calendar day that
// falls on target. Asking for today's weekday yields a week from today.
func nextWeekday(now time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func (r *resolution) calendarDate(monthName, dayText string) bool {
	month, ok := months[strings.TrimSuffix(monthName, ".")[:3]]
	if !ok {
		return false
	}
	dom, err := strconv.Atoi(dayText)
	if err != nil || dom < 1 || dom > daysIn(month, r.now.Year()) {
		return false
	}
	loc := r.now.Location()
	day := time.Date(r.now.Year(), month, dom, 0, 0, 0, 0, loc)
	if !atClock(day, r.clock).After(r.now) {
		next := r.now.Year() + 1
		for dom > daysIn(month, next) {
			next++
		}
		day = time.Date(next, month, dom, 0, 0, 0, 0, loc)
	}
	return r.set(day, month.String()+" "+strconv.Itoa(dom))
}

func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
