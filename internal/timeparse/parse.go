// Package timeparse resolves free-text temporal expressions ("2d 5h", "eom",
// "2021-09-02T12:25:00+02:00", "5th july at 3pm") into a concrete UTC instant.
//
// Parse never fails hard: on total failure it returns the reference instant
// unchanged plus diagnostics explaining why, so callers can surface the
// warning and refuse to persist a no-op reminder.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const stampMinute = "2006-01-02 15:04"

var (
	splitRx = regexp.MustCompile(`[^a-zA-Z0-9-]+`) // keep the negative sign attached
	numRx   = regexp.MustCompile(`-?\d+`)
	// Inputs like "1m"/"5 m" must keep failing for ambiguity, so the fuzzy
	// strategy is not allowed to rescue them.
	ambiguousRx = regexp.MustCompile(`^-?\d+\W?m`)
)

// token is one argument of the expression: an optional signed number plus the
// unit letters that remained after extracting it.
type token struct {
	num    int
	hasNum bool
	unit   string
	raw    string // original text, for diagnostics
}

// Parse resolves text against refUTC, applying timezone for anchor and
// calendar interpretation. Strategies run in fixed priority order and
// short-circuit on the first result that differs from refUTC:
// absolute anchors, relative offsets, strict ISO-8601, fuzzy natural language.
//
// The returned instant may lie in the past; the diagnostics then carry an
// explicit warning and the caller decides whether to reject.
func Parse(text string, refUTC time.Time, timezone string) (time.Time, string) {
	loc := loadLocation(timezone)
	refLocal := refUTC.In(loc)

	args := joinSpacedArgs(tokenize(text))

	at, info := parseAbsolute(args, refUTC, refLocal)
	if at.Equal(refUTC) {
		at, info = parseRelative(args, refUTC)
	}
	var isoErr error
	if at.Equal(refUTC) {
		var t time.Time
		if t, isoErr = parseISO(text, loc); isoErr == nil {
			at, info = t, ""
		} else if !ambiguousRx.MatchString(strings.TrimSpace(text)) {
			if t, ok := parseFuzzy(text, loc); ok {
				at, info = t, ""
			}
		}
	}
	if at.Equal(refUTC) && info == "" && strings.TrimSpace(text) != "" {
		info = fmt.Sprintf("• cannot interpret '%s' as a point in time\n", strings.TrimSpace(text))
		if isoErr != nil {
			info += fmt.Sprintf("  %v\n", isoErr)
		}
	}

	if at.Before(refUTC) {
		info += "• the given date must be in the future\n"
		info += fmt.Sprintf("  current utc-time is:  %s\n", refUTC.Format(stampMinute))
		info += fmt.Sprintf("  interpreted input is: %s\n", at.UTC().Format(stampMinute))
		// past instants are returned anyway; the warning travels with them
	}

	return at.UTC(), info
}

func loadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// tokenize splits on anything that is not alphanumeric or a minus sign and
// separates the signed number from the unit letters of each piece.
func tokenize(text string) []token {
	var out []token
	for _, part := range splitRx.Split(text, -1) {
		if part == "" {
			continue
		}
		t := token{unit: part, raw: part}
		if numStr := numRx.FindString(part); numStr != "" {
			if n, err := strconv.Atoi(numStr); err == nil {
				t.num = n
				t.hasNum = true
				t.unit = strings.Replace(part, numStr, "", 1)
			}
		}
		out = append(out, t)
	}
	return out
}

// joinSpacedArgs merges a number-only token with a directly following
// unit-only token, so "2 d" behaves like "2d". Complete pairs, and pairs
// followed by a non-joinable token (eom, eoy, ...), are left alone.
func joinSpacedArgs(args []token) []token {
	out := make([]token, 0, len(args))
	for i := 0; i < len(args); i++ {
		cur := args[i]
		if i+1 < len(args) {
			next := args[i+1]
			if cur.hasNum && cur.unit == "" && !next.hasNum && next.unit != "" {
				out = append(out, token{num: cur.num, hasNum: true, unit: next.unit, raw: cur.raw + " " + next.raw})
				i++
				continue
			}
		}
		out = append(out, cur)
	}
	return out
}

// parseAbsolute resolves the end-of-period anchors (eoy, eom, eow, eod)
// against the timezone-applied reference. Anchor offsets are summed; any
// other token is rejected, as absolute and relative intervals cannot mix.
func parseAbsolute(args []token, refUTC, refLocal time.Time) (time.Time, string) {
	var total time.Duration
	var info strings.Builder

	midnight := time.Date(refLocal.Year(), refLocal.Month(), refLocal.Day(), 0, 0, 0, 0, refLocal.Location())

	for _, a := range args {
		switch a.unit {
		case "eoy":
			// next Jan 1 local, minus one day
			eoy := time.Date(refLocal.Year(), time.January, 1, 0, 0, 0, 0, refLocal.Location()).AddDate(1, 0, -1)
			total += eoy.Sub(refLocal)
		case "eom":
			// first of next month local, minus 12 hours
			eom := time.Date(refLocal.Year(), refLocal.Month(), 1, 0, 0, 0, 0, refLocal.Location()).AddDate(0, 1, 0).Add(-12 * time.Hour)
			total += eom.Sub(refLocal)
		case "eow":
			// the working week ends Friday evening: start-of-week + 5 days - 1 hour
			weekday := (int(refLocal.Weekday()) + 6) % 7 // Monday == 0
			weekStart := midnight.AddDate(0, 0, -weekday)
			eow := weekStart.AddDate(0, 0, 5).Add(-1 * time.Hour)
			total += eow.Sub(refLocal)
		case "eod":
			// next midnight local, minus 15 minutes
			eod := midnight.AddDate(0, 0, 1).Add(-15 * time.Minute)
			total += eod.Sub(refLocal)
		default:
			fmt.Fprintf(&info, "• ignoring '%s', as absolute and relative intervals cannot be mixed\n", a.raw)
		}
	}

	return refUTC.Add(total), info.String()
}

// parseRelative sums relative offsets onto the reference. Years, months and
// weeks use calendar arithmetic; days, hours and minutes are fixed durations.
func parseRelative(args []token, refUTC time.Time) (time.Time, string) {
	var years, months, weeks int
	var fixed time.Duration
	var info strings.Builder

	for _, a := range args {
		if !a.hasNum {
			fmt.Fprintf(&info, "• ignoring '%s', as the required numerical part is missing\n", a.raw)
			continue
		}
		switch {
		case strings.HasPrefix(a.unit, "y"):
			years += a.num
		case strings.HasPrefix(a.unit, "mo"):
			months += a.num
		case strings.HasPrefix(a.unit, "w"):
			weeks += a.num
		case a.unit == "d" || strings.HasPrefix(a.unit, "da"):
			// the prefix check must not swallow the month 'december'
			fixed += time.Duration(a.num) * 24 * time.Hour
		case strings.HasPrefix(a.unit, "h"):
			fixed += time.Duration(a.num) * time.Hour
		case strings.HasPrefix(a.unit, "mi"):
			fixed += time.Duration(a.num) * time.Minute
		case a.unit == "m":
			info.WriteString("• ambiguous reference to minutes/months, please write out at least 'mi' for minutes or 'mo' for months\n")
		default:
			fmt.Fprintf(&info, "• ignoring '%s', as this is not a known interval\n", a.raw)
		}
	}

	// calendar offsets first, then the fixed-duration adjustment
	at := addMonths(refUTC, 12*years+months).AddDate(0, 0, 7*weeks).Add(fixed)
	if at.Year() > 9999 || at.Year() < 0 {
		return refUTC, "• the interval is out of bounds\n"
	}
	return at, info.String()
}

// addMonths shifts t by whole months, clamping the day to the last valid day
// of the landing month. "1mo" from Jan 31 means Feb 28, not Mar 3, so the
// overflow normalization of AddDate is not wanted here.
func addMonths(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isoLayouts are tried in order; the timezone-less ones are interpreted in
// the configured location before conversion to UTC.
var isoLayouts = []struct {
	layout string
	hasTZ  bool
}{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
	{"20060102T150405", false},
	{"20060102", false},
}

// parseISO tries the layouts in order and keeps the last failure so total
// parse failure can surface the underlying message.
func parseISO(text string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(text)
	var lastErr error
	for _, l := range isoLayouts {
		var t time.Time
		var err error
		if l.hasTZ {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// parseFuzzy is the last resort: permissive natural-language parsing with
// day-before-month preference and no year-first bias. Timezone-less results
// are interpreted in the configured location.
func parseFuzzy(text string, loc *time.Location) (time.Time, bool) {
	t, err := dateparse.ParseIn(strings.TrimSpace(text), loc,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
