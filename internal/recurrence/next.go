package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Next computes the next trigger strictly after last.
//
// It is deterministic: equal (rule, last) inputs always yield the same
// instant, and the result is always > last so a recurrence can never
// re-fire the occurrence it was computed from.
func Next(r Rule, last time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}
	loc := r.location()
	local := last.In(loc)

	switch r.Kind {
	case KindWeekly:
		return nextWeekly(r, local)
	case KindMonthly:
		return nextMonthly(r, local, loc)
	case KindYearly:
		return nextYearly(r, local, loc)
	}
	return time.Time{}, fmt.Errorf("unknown rule kind %q", r.Kind)
}

// nextWeekly leans on the cron parser for weekday/time matching. A step of N
// advances N matching slots, so "every other monday" fires on every second
// occurrence relative to the last firing.
func nextWeekly(r Rule, local time.Time) (time.Time, error) {
	spec := fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, cronDays(r.Weekdays))
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("weekly spec %q: %w", spec, err)
	}
	t := local
	for i := 0; i < r.step(); i++ {
		t = sched.Next(t)
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("weekly spec %q has no next occurrence", spec)
		}
	}
	return t.UTC(), nil
}

func nextMonthly(r Rule, local time.Time, loc *time.Location) (time.Time, error) {
	year, month := local.Year(), local.Month()
	for i := 0; i < 1200; i++ {
		cand := anchoredDay(year, month, r.Day, r.Hour, r.Minute, loc)
		if cand.After(local) {
			return cand.UTC(), nil
		}
		month += time.Month(r.step())
		for month > time.December {
			month -= 12
			year++
		}
	}
	return time.Time{}, fmt.Errorf("no next occurrence for monthly rule (day %d)", r.Day)
}

func nextYearly(r Rule, local time.Time, loc *time.Location) (time.Time, error) {
	year := local.Year()
	for i := 0; i < 400; i++ {
		cand := anchoredDay(year, r.Month, r.Day, r.Hour, r.Minute, loc)
		if cand.After(local) {
			return cand.UTC(), nil
		}
		year += r.step()
	}
	return time.Time{}, fmt.Errorf("no next occurrence for yearly rule (%s %d)", r.Month, r.Day)
}

// anchoredDay clamps day to the last valid day of the month.
func anchoredDay(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func cronDays(days []time.Weekday) string {
	out := make([]string, 0, len(days))
	for _, wd := range sortedWeekdays(days) {
		// cron and time.Weekday agree on Sunday == 0.
		out = append(out, strconv.Itoa(int(wd)))
	}
	return strings.Join(out, ",")
}
