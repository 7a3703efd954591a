package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindbot/internal/recurrence"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "remind.db"), BusyTimeout: 2 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestReminderRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	r, err := st.AddReminder(ctx, reminder.Reminder{
		Author:    100,
		Target:    200,
		GuildID:   -42,
		ChannelID: 7,
		Message:   "water the plants",
		TriggerAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected an assigned ID")
	}

	// Not due yet.
	due, err := st.PopElapsedReminders(ctx, now)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("popped %d, want 0", len(due))
	}

	due, err = st.PopElapsedReminders(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("popped %d, want 1", len(due))
	}
	got := due[0]
	if got.Message != "water the plants" || got.GuildID != -42 || !got.TriggerAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Popped means gone.
	if n, _ := st.GetReminderCount(ctx); n != 0 {
		t.Fatalf("count after pop = %d, want 0", n)
	}
}

func TestPopElapsedAtMostOnce(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 20; i++ {
		if _, err := st.AddReminder(ctx, reminder.Reminder{Author: 1, Target: 1, Message: "x", TriggerAt: past}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := st.PopElapsedReminders(ctx, time.Now().UTC())
			if err != nil {
				t.Errorf("pop: %v", err)
				return
			}
			mu.Lock()
			for _, r := range got {
				seen[r.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 20 {
		t.Fatalf("claimed %d distinct reminders, want 20", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("reminder %s claimed %d times", id, n)
		}
	}
}

func TestIntervalLifecycle(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	rule := recurrence.Rule{Kind: recurrence.KindWeekly, Weekdays: []time.Weekday{time.Friday}, Hour: 14, Minute: 15, Every: 1}
	at := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	iv, err := st.AddInterval(ctx, reminder.IntervalReminder{
		Reminder: reminder.Reminder{Author: 1, Target: 2, GuildID: 3, Message: "standup"},
		Rule:     rule,
		At:       at,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	due, err := st.GetElapsedIntervals(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("elapsed: %v", err)
	}
	if len(due) != 1 || due[0].ID != iv.ID {
		t.Fatalf("elapsed = %+v, want the stored interval", due)
	}
	if due[0].Rule.Kind != recurrence.KindWeekly || due[0].Rule.Hour != 14 {
		t.Fatalf("rule did not survive the round trip: %+v", due[0].Rule)
	}

	next := at.Add(7 * 24 * time.Hour)
	if err := st.UpdateIntervalAt(ctx, iv.ID, next); err != nil {
		t.Fatalf("update at: %v", err)
	}
	due, _ = st.GetElapsedIntervals(ctx, time.Now().UTC())
	if len(due) != 0 {
		t.Fatalf("interval still due after reschedule: %+v", due)
	}

	// Orphaned intervals are hidden, then swept.
	if err := st.MarkIntervalOrphaned(ctx, iv.ID); err != nil {
		t.Fatalf("mark orphaned: %v", err)
	}
	if n, _ := st.GetIntervalCount(ctx); n != 0 {
		t.Fatalf("orphaned interval still counted: %d", n)
	}
	n, err := st.DeleteOrphanedIntervals(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = (%d, %v), want (1, nil)", n, err)
	}
}

func TestDeleteGuildData(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	later := time.Now().UTC().Add(time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := st.AddReminder(ctx, reminder.Reminder{Author: 1, Target: 1, GuildID: 9, Message: "a", TriggerAt: later}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := st.AddReminder(ctx, reminder.Reminder{Author: 1, Target: 1, GuildID: 10, Message: "b", TriggerAt: later}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := st.AddInterval(ctx, reminder.IntervalReminder{
		Reminder: reminder.Reminder{Author: 1, Target: 1, GuildID: 9, Message: "c"},
		Rule:     recurrence.Rule{Kind: recurrence.KindMonthly, Day: 1},
		At:       later,
	}); err != nil {
		t.Fatalf("add interval: %v", err)
	}

	nr, ni, err := st.DeleteGuildData(ctx, 9)
	if err != nil {
		t.Fatalf("delete guild: %v", err)
	}
	if nr != 3 || ni != 1 {
		t.Fatalf("deleted (%d, %d), want (3, 1)", nr, ni)
	}
	if n, _ := st.GetGuildCount(ctx); n != 1 {
		t.Fatalf("guild count = %d, want 1", n)
	}
}

func TestPrefsDefaultsAndOverrides(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	mode, err := st.GetRenderMode(ctx, 123)
	if err != nil || mode != reminder.ModeHybrid {
		t.Fatalf("default mode = (%v, %v), want hybrid", mode, err)
	}
	tz, err := st.GetTimezone(ctx, 123)
	if err != nil || tz != "UTC" {
		t.Fatalf("default tz = (%q, %v), want UTC", tz, err)
	}

	if err := st.SetRenderMode(ctx, 123, reminder.ModeTextOnly); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := st.SetTimezone(ctx, 123, "Europe/Berlin"); err != nil {
		t.Fatalf("set tz: %v", err)
	}

	// Each preference survives the other being written.
	mode, _ = st.GetRenderMode(ctx, 123)
	tz, _ = st.GetTimezone(ctx, 123)
	if mode != reminder.ModeTextOnly || tz != "Europe/Berlin" {
		t.Fatalf("prefs = (%v, %q), want (text-only, Europe/Berlin)", mode, tz)
	}
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.DeleteReminder(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
