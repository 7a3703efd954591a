// Package storage persists reminders, recurring intervals and per-scope
// preferences in a single SQLite file.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store at cfg.Path, creating the file and the
// schema as needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, author_id, target_id, guild_id, channel_id, message, created_at, trigger_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.Author, r.Target, r.GuildID, r.ChannelID, r.Message, r.CreatedAt.Unix(), r.TriggerAt.Unix(),
	)
	return r, err
}

func (s *sqliteStore) AddInterval(ctx context.Context, iv reminder.IntervalReminder) (reminder.IntervalReminder, error) {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}
	rule, err := json.Marshal(iv.Rule)
	if err != nil {
		return iv, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO intervals(id, author_id, target_id, guild_id, channel_id, message, created_at, rule, at, orphaned)
		 VALUES(?,?,?,?,?,?,?,?,?,0)`,
		iv.ID, iv.Author, iv.Target, iv.GuildID, iv.ChannelID, iv.Message, iv.CreatedAt.Unix(), string(rule), iv.At.Unix(),
	)
	return iv, err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "reminders", id)
}

func (s *sqliteStore) DeleteInterval(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "intervals", id)
}

func (s *sqliteStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PopElapsedReminders claims due reminders in a single statement, so a
// reminder can only ever be handed to one caller.
func (s *sqliteStore) PopElapsedReminders(ctx context.Context, now time.Time) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM reminders WHERE trigger_at <= ?
		 RETURNING id, author_id, target_id, guild_id, channel_id, message, created_at, trigger_at`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		var r reminder.Reminder
		var created, trigger int64
		if err := rows.Scan(&r.ID, &r.Author, &r.Target, &r.GuildID, &r.ChannelID, &r.Message, &created, &trigger); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.TriggerAt = time.Unix(trigger, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetElapsedIntervals(ctx context.Context, now time.Time) ([]reminder.IntervalReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, target_id, guild_id, channel_id, message, created_at, rule, at
		 FROM intervals WHERE orphaned = 0 AND at <= ?`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanIntervals(rows)
}

func (s *sqliteStore) scanIntervals(rows *sql.Rows) ([]reminder.IntervalReminder, error) {
	var out []reminder.IntervalReminder
	for rows.Next() {
		var iv reminder.IntervalReminder
		var created, at int64
		var rule string
		if err := rows.Scan(&iv.ID, &iv.Author, &iv.Target, &iv.GuildID, &iv.ChannelID, &iv.Message, &created, &rule, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rule), &iv.Rule); err != nil {
			// A corrupt rule must not wedge the whole batch.
			s.log.Warn("storage: skipping interval with unreadable rule",
				logx.String("id", iv.ID), logx.Err(err))
			continue
		}
		iv.CreatedAt = time.Unix(created, 0).UTC()
		iv.At = time.Unix(at, 0).UTC()
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateIntervalAt(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE intervals SET at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) MarkIntervalOrphaned(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE intervals SET orphaned = 1 WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) DeleteOrphanedIntervals(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM intervals WHERE orphaned = 1`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) ListRemindersByAuthor(ctx context.Context, authorID int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, target_id, guild_id, channel_id, message, created_at, trigger_at
		 FROM reminders WHERE author_id = ? ORDER BY trigger_at`,
		authorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		var r reminder.Reminder
		var created, trigger int64
		if err := rows.Scan(&r.ID, &r.Author, &r.Target, &r.GuildID, &r.ChannelID, &r.Message, &created, &trigger); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.TriggerAt = time.Unix(trigger, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListIntervalsByAuthor(ctx context.Context, authorID int64) ([]reminder.IntervalReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, target_id, guild_id, channel_id, message, created_at, rule, at
		 FROM intervals WHERE author_id = ? ORDER BY at`,
		authorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanIntervals(rows)
}

func (s *sqliteStore) DeleteGuildData(ctx context.Context, guildID int64) (int, int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, 0, err
	}
	nr, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM intervals WHERE guild_id = ?`, guildID)
	if err != nil {
		return int(nr), 0, err
	}
	ni, _ := res.RowsAffected()

	_, _ = s.db.ExecContext(ctx, `DELETE FROM prefs WHERE scope_id = ?`, guildID)
	return int(nr), int(ni), nil
}

func (s *sqliteStore) GetReminderCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM reminders`)
}

func (s *sqliteStore) GetIntervalCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM intervals WHERE orphaned = 0`)
}

func (s *sqliteStore) GetGuildCount(ctx context.Context) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM (
		   SELECT guild_id FROM reminders WHERE guild_id != 0
		   UNION
		   SELECT guild_id FROM intervals WHERE guild_id != 0
		 )`)
}

func (s *sqliteStore) count(ctx context.Context, query string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

func (s *sqliteStore) GetRenderMode(ctx context.Context, scopeID int64) (reminder.RenderMode, error) {
	var mode sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT render_mode FROM prefs WHERE scope_id = ?`, scopeID).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !mode.Valid) {
		return reminder.ModeHybrid, nil
	}
	if err != nil {
		return reminder.ModeHybrid, err
	}
	return reminder.ParseRenderMode(mode.String), nil
}

func (s *sqliteStore) SetRenderMode(ctx context.Context, scopeID int64, mode reminder.RenderMode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs(scope_id, render_mode) VALUES(?,?)
		 ON CONFLICT(scope_id) DO UPDATE SET render_mode=excluded.render_mode`,
		scopeID, string(mode),
	)
	return err
}

func (s *sqliteStore) GetTimezone(ctx context.Context, scopeID int64) (string, error) {
	var tz sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT timezone FROM prefs WHERE scope_id = ?`, scopeID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !tz.Valid) {
		return "UTC", nil
	}
	if err != nil {
		return "UTC", err
	}
	if strings.TrimSpace(tz.String) == "" {
		return "UTC", nil
	}
	return tz.String, nil
}

func (s *sqliteStore) SetTimezone(ctx context.Context, scopeID int64, tz string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs(scope_id, timezone) VALUES(?,?)
		 ON CONFLICT(scope_id) DO UPDATE SET timezone=excluded.timezone`,
		scopeID, tz,
	)
	return err
}
