package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

var ErrNotFound = errors.New("not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the persistence API for reminders, recurring intervals and
// per-scope preferences. All instants are stored as unix seconds in UTC.
type Store interface {
	// AddReminder persists r and returns it with an assigned ID.
	AddReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error)
	// AddInterval persists iv and returns it with an assigned ID.
	AddInterval(ctx context.Context, iv reminder.IntervalReminder) (reminder.IntervalReminder, error)

	DeleteReminder(ctx context.Context, id string) error
	DeleteInterval(ctx context.Context, id string) error

	// PopElapsedReminders atomically removes and returns every one-shot
	// reminder due at or before now. Two concurrent callers never receive
	// the same reminder.
	PopElapsedReminders(ctx context.Context, now time.Time) ([]reminder.Reminder, error)

	// GetElapsedIntervals returns non-orphaned intervals due at or before now.
	GetElapsedIntervals(ctx context.Context, now time.Time) ([]reminder.IntervalReminder, error)
	// UpdateIntervalAt persists the recomputed next trigger.
	UpdateIntervalAt(ctx context.Context, id string, at time.Time) error
	// MarkIntervalOrphaned flags an interval whose target can no longer be
	// resolved; flagged intervals are skipped until the sweep removes them.
	MarkIntervalOrphaned(ctx context.Context, id string) error
	// DeleteOrphanedIntervals removes flagged intervals, returning the count.
	DeleteOrphanedIntervals(ctx context.Context) (int, error)

	ListRemindersByAuthor(ctx context.Context, authorID int64) ([]reminder.Reminder, error)
	ListIntervalsByAuthor(ctx context.Context, authorID int64) ([]reminder.IntervalReminder, error)

	// DeleteGuildData removes everything tied to a group the bot left,
	// returning the number of reminders and intervals dropped.
	DeleteGuildData(ctx context.Context, guildID int64) (reminders, intervals int, err error)

	GetReminderCount(ctx context.Context) (int, error)
	GetIntervalCount(ctx context.Context) (int, error)
	// GetGuildCount counts distinct groups with at least one pending entry.
	GetGuildCount(ctx context.Context) (int, error)

	// Preferences are keyed by scope: the group ID for group chats, the user
	// ID for direct chats. Lookups fall back to defaults (hybrid, UTC).
	GetRenderMode(ctx context.Context, scopeID int64) (reminder.RenderMode, error)
	SetRenderMode(ctx context.Context, scopeID int64, mode reminder.RenderMode) error
	GetTimezone(ctx context.Context, scopeID int64) (string, error)
	SetTimezone(ctx context.Context, scopeID int64, tz string) error

	Close() error
}
