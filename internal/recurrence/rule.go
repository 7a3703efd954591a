package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind discriminates the supported recurrence shapes.
type Kind string

const (
	// KindWeekly fires on fixed weekdays at a time of day.
	KindWeekly Kind = "weekly"
	// KindMonthly fires every N months anchored to a day number.
	KindMonthly Kind = "monthly"
	// KindYearly fires every N years anchored to a month + day number.
	KindYearly Kind = "yearly"
)

// Rule describes a recurrence, evaluated in Timezone and converted back to UTC.
//
// Day anchors beyond the length of a month clamp to the last valid day of that
// month; the anchor itself is kept, so a later month with enough days returns
// to the anchored day (no drift).
type Rule struct {
	Kind Kind `json:"kind"`

	// Weekly only.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// Monthly/yearly anchor day (1..31).
	Day int `json:"day,omitempty"`
	// Yearly anchor month.
	Month time.Month `json:"month,omitempty"`

	// Time of day, in Timezone.
	Hour   int `json:"hour"`
	Minute int `json:"minute"`

	// Every skips occurrences: weekly rules fire on every Nth matching weekday
	// slot, monthly/yearly rules step N months/years. 0 and 1 both mean every.
	Every int `json:"every,omitempty"`

	Timezone string `json:"timezone,omitempty"`
}

func (r Rule) Validate() error {
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("invalid time of day %02d:%02d", r.Hour, r.Minute)
	}
	switch r.Kind {
	case KindWeekly:
		if len(r.Weekdays) == 0 {
			return errors.New("weekly rule needs at least one weekday")
		}
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday %d", wd)
			}
		}
	case KindMonthly:
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("invalid anchor day %d", r.Day)
		}
	case KindYearly:
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("invalid anchor day %d", r.Day)
		}
		if r.Month < time.January || r.Month > time.December {
			return fmt.Errorf("invalid anchor month %d", r.Month)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// String renders a short human-readable description for logs and listings.
func (r Rule) String() string {
	every := r.step()
	var b strings.Builder
	b.WriteString("every ")
	switch r.Kind {
	case KindWeekly:
		if every > 1 {
			fmt.Fprintf(&b, "%d. ", every)
		}
		names := make([]string, 0, len(r.Weekdays))
		for _, wd := range sortedWeekdays(r.Weekdays) {
			names = append(names, wd.String())
		}
		b.WriteString(strings.Join(names, ", "))
	case KindMonthly:
		if every > 1 {
			fmt.Fprintf(&b, "%d months", every)
		} else {
			b.WriteString("month")
		}
		fmt.Fprintf(&b, " on day %d", r.Day)
	case KindYearly:
		if every > 1 {
			fmt.Fprintf(&b, "%d years", every)
		} else {
			b.WriteString("year")
		}
		fmt.Fprintf(&b, " on %s %d", r.Month, r.Day)
	}
	fmt.Fprintf(&b, " at %02d:%02d", r.Hour, r.Minute)
	if tz := strings.TrimSpace(r.Timezone); tz != "" && tz != "UTC" {
		b.WriteString(" (")
		b.WriteString(tz)
		b.WriteString(")")
	}
	return b.String()
}

func (r Rule) step() int {
	if r.Every < 1 {
		return 1
	}
	return r.Every
}

func (r Rule) location() *time.Location {
	tz := strings.TrimSpace(r.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sortedWeekdays(in []time.Weekday) []time.Weekday {
	out := append([]time.Weekday(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
