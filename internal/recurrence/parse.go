package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time of day used when a rule text carries none.
const (
	defaultHour   = 9
	defaultMinute = 0
)

var errNotRecurring = errors.New("not a recurrence expression")

// IsRecurring reports whether the text looks like a recurrence expression
// ("every ...") without fully parsing it.
func IsRecurring(text string) bool {
	f := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	return len(f) > 1 && f[0] == "every"
}

// ParseRule turns a recurrence expression into a Rule.
//
// Accepted shapes (case-insensitive):
//
//	every friday at 14:15
//	every monday and thursday
//	every other tuesday at 8am
//	every month on day 15
//	every 3 months on day 31 at 12:00
//	every other year on day 2 of july
//	every year on july 2
//
// The timezone is attached verbatim; it is resolved when Next runs.
func ParseRule(text, timezone string) (Rule, error) {
	f := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(f) < 2 || f[0] != "every" {
		return Rule{}, errNotRecurring
	}
	toks := f[1:]

	rule := Rule{Hour: defaultHour, Minute: defaultMinute, Every: 1, Timezone: timezone}

	// Optional step: "other", "2nd", or a plain number.
	if len(toks) > 0 {
		if toks[0] == "other" {
			rule.Every = 2
			toks = toks[1:]
		} else if n, ok := parseOrdinal(toks[0]); ok && n > 0 {
			rule.Every = n
			toks = toks[1:]
		}
	}
	if len(toks) == 0 {
		return Rule{}, fmt.Errorf("incomplete recurrence %q", text)
	}

	// Trailing "at <clock>" applies to every kind.
	if i := indexOf(toks, "at"); i >= 0 {
		if i+1 >= len(toks) {
			return Rule{}, fmt.Errorf("missing time after 'at' in %q", text)
		}
		h, m, ok := parseClock(toks[i+1])
		if !ok {
			return Rule{}, fmt.Errorf("invalid time of day %q", toks[i+1])
		}
		rule.Hour, rule.Minute = h, m
		toks = append(toks[:i:i], toks[i+2:]...)
	}

	switch {
	case isWeekdayWord(toks[0]):
		rule.Kind = KindWeekly
		for len(toks) > 0 {
			wd, ok := parseWeekday(toks[0])
			if !ok {
				return Rule{}, fmt.Errorf("unexpected token %q in weekly rule", toks[0])
			}
			rule.Weekdays = append(rule.Weekdays, wd)
			toks = toks[1:]
			if len(toks) > 0 && (toks[0] == "and" || toks[0] == ",") {
				toks = toks[1:]
			}
		}

	case toks[0] == "month" || toks[0] == "months":
		rule.Kind = KindMonthly
		day, _, err := parseAnchor(toks[1:])
		if err != nil {
			return Rule{}, err
		}
		rule.Day = day

	case toks[0] == "year" || toks[0] == "years":
		rule.Kind = KindYearly
		day, month, err := parseAnchor(toks[1:])
		if err != nil {
			return Rule{}, err
		}
		if month == 0 {
			return Rule{}, errors.New("yearly rule needs a month (e.g. 'on day 2 of july')")
		}
		rule.Day, rule.Month = day, month

	default:
		return Rule{}, fmt.Errorf("unknown recurrence unit %q", toks[0])
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// parseAnchor reads "on day N [of <month>]", "on <Nth> [<month>]" or
// "on <month> N" and returns the anchor day and (optionally) month.
func parseAnchor(toks []string) (int, time.Month, error) {
	if len(toks) > 0 && toks[0] == "on" {
		toks = toks[1:]
	}
	day := 0
	var month time.Month
	for _, t := range toks {
		switch {
		case t == "day" || t == "the" || t == "of":
			// filler
		case isMonthWord(t):
			month, _ = parseMonth(t)
		default:
			n, ok := parseOrdinal(t)
			if !ok {
				return 0, 0, fmt.Errorf("unexpected token %q in day anchor", t)
			}
			day = n
		}
	}
	if day == 0 {
		return 0, 0, errors.New("missing anchor day (e.g. 'on day 15')")
	}
	return day, month, nil
}

// parseOrdinal accepts "15", "2nd", "3rd", "31st" and the word ordinals the
// original syntax allowed for small steps.
func parseOrdinal(s string) (int, bool) {
	switch s {
	case "second":
		return 2, true
	case "third":
		return 3, true
	case "fourth":
		return 4, true
	}
	s = strings.TrimSuffix(s, "st")
	s = strings.TrimSuffix(s, "nd")
	s = strings.TrimSuffix(s, "rd")
	s = strings.TrimSuffix(s, "th")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseClock accepts "14:15", "14", "2pm" and "2:30pm".
func parseClock(s string) (int, int, bool) {
	pm := false
	am := false
	if strings.HasSuffix(s, "pm") {
		pm = true
		s = strings.TrimSuffix(s, "pm")
	} else if strings.HasSuffix(s, "am") {
		am = true
		s = strings.TrimSuffix(s, "am")
	}
	hs, ms, found := strings.Cut(s, ":")
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, false
	}
	m := 0
	if found {
		if m, err = strconv.Atoi(ms); err != nil {
			return 0, 0, false
		}
	}
	if pm && h < 12 {
		h += 12
	}
	if am && h == 12 {
		h = 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func parseWeekday(s string) (time.Weekday, bool) { wd, ok := weekdayNames[s]; return wd, ok }
func isWeekdayWord(s string) bool                { _, ok := weekdayNames[s]; return ok }
func parseMonth(s string) (time.Month, bool)     { m, ok := monthNames[s]; return m, ok }
func isMonthWord(s string) bool                  { _, ok := monthNames[s]; return ok }

func indexOf(toks []string, want string) int {
	for i, t := range toks {
		if t == want {
			return i
		}
	}
	return -1
}
