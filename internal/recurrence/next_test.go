package recurrence

import (
	"testing"
	"time"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextWeekly(t *testing.T) {
	t.Parallel()
	rule := Rule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Friday}, Hour: 14, Minute: 15, Timezone: "UTC"}

	// 2023-01-10 is a Tuesday; next Friday is the 13th.
	got, err := Next(rule, utc(2023, time.January, 10, 0, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := utc(2023, time.January, 13, 14, 15)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}

	// Firing exactly at the slot must advance a full week.
	got, err = Next(rule, want)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want2 := utc(2023, time.January, 20, 14, 15); !got.Equal(want2) {
		t.Fatalf("Next = %v, want %v", got, want2)
	}
}

func TestNextWeeklyEveryOther(t *testing.T) {
	t.Parallel()
	rule := Rule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday}, Hour: 8, Minute: 0, Every: 2}

	got, err := Next(rule, utc(2023, time.January, 2, 8, 0)) // a Monday, at the slot
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := utc(2023, time.January, 16, 8, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextMonthlyClampsToShortMonths(t *testing.T) {
	t.Parallel()
	rule := Rule{Kind: KindMonthly, Day: 31, Hour: 12, Minute: 0}

	got, err := Next(rule, utc(2023, time.January, 31, 12, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	// February clamps to the 28th...
	if want := utc(2023, time.February, 28, 12, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	// ...and March returns to the anchored 31st (no drift).
	got, err = Next(rule, got)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := utc(2023, time.March, 31, 12, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextYearlyEveryOther(t *testing.T) {
	t.Parallel()
	rule := Rule{Kind: KindYearly, Month: time.July, Day: 2, Hour: 9, Minute: 0, Every: 2}

	got, err := Next(rule, utc(2023, time.July, 2, 9, 0))
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if want := utc(2025, time.July, 2, 9, 0); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextHonorsTimezone(t *testing.T) {
	t.Parallel()
	rule := Rule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Friday}, Hour: 14, Minute: 15, Timezone: "Europe/Berlin"}

	got, err := Next(rule, utc(2023, time.June, 12, 0, 0)) // Monday
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	// 14:15 CEST == 12:15 UTC during summer time.
	if want := utc(2023, time.June, 16, 12, 15); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextStrictlyAfterInput(t *testing.T) {
	t.Parallel()
	rules := []Rule{
		{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday, time.Friday}, Hour: 0, Minute: 0},
		{Kind: KindMonthly, Day: 1, Hour: 0, Minute: 0},
		{Kind: KindMonthly, Day: 31, Hour: 23, Minute: 59, Every: 3},
		{Kind: KindYearly, Month: time.February, Day: 29, Hour: 6, Minute: 30},
	}
	starts := []time.Time{
		utc(2020, time.February, 29, 6, 30),
		utc(2023, time.December, 31, 23, 59),
		utc(2024, time.January, 1, 0, 0),
	}
	for _, rule := range rules {
		for _, start := range starts {
			got, err := Next(rule, start)
			if err != nil {
				t.Fatalf("Next(%v, %v) error: %v", rule, start, err)
			}
			if !got.After(start) {
				t.Fatalf("Next(%v, %v) = %v, not strictly after input", rule, start, got)
			}
			// Determinism.
			again, _ := Next(rule, start)
			if !again.Equal(got) {
				t.Fatalf("Next(%v, %v) not deterministic: %v vs %v", rule, start, got, again)
			}
		}
	}
}

func TestNextRejectsInvalidRules(t *testing.T) {
	t.Parallel()
	bad := []Rule{
		{Kind: KindWeekly},                    // no weekdays
		{Kind: KindMonthly, Day: 0},           // no anchor
		{Kind: KindYearly, Day: 12},           // no month
		{Kind: "daily", Day: 1},               // unknown kind
		{Kind: KindMonthly, Day: 5, Hour: 24}, // bad clock
	}
	for _, rule := range bad {
		if _, err := Next(rule, utc(2023, time.January, 1, 0, 0)); err == nil {
			t.Fatalf("Next(%+v) accepted an invalid rule", rule)
		}
	}
}
