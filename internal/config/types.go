// Package config loads, validates and watches the bot's yaml configuration.
// Unknown keys are rejected so typos surface at startup instead of silently
// falling back to defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Defaults  DefaultsConfig  `json:"defaults,omitempty"`
	Ops       OpsConfig       `json:"ops,omitempty"`
	BotList   BotListConfig   `json:"botlist,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRate caps outgoing messages per second.
	SendRate float64 `json:"send_rate,omitempty"`
	Burst    int     `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy handler).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig sets the periodic task cadences. All fields are Go
// duration strings; omitted fields use the built-in cadences.
type SchedulerConfig struct {
	ReminderTick  string `json:"reminder_tick,omitempty"`
	IntervalTick  string `json:"interval_tick,omitempty"`
	OrphanTick    string `json:"orphan_tick,omitempty"`
	CountTick     string `json:"count_tick,omitempty"`
	AllowedDelay  string `json:"allowed_delay,omitempty"`
	AllowedJitter string `json:"allowed_jitter,omitempty"`
}

// DefaultsConfig holds the fallbacks used when a chat has no stored
// preference.
type DefaultsConfig struct {
	Timezone   string `json:"timezone,omitempty"`
	RenderMode string `json:"render_mode,omitempty"`
}

// OpsConfig controls the HTTP surface (/healthz, /readyz, /metrics).
// Prefer binding to localhost.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9180"
}

// BotListConfig controls the periodic guild-count report to a bot listing
// site. Disabled unless both URL and token are set.
type BotListConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Token    string `json:"token,omitempty"`
	Interval string `json:"interval,omitempty"` // default: "30m"
}

// Validate checks the cross-field constraints that strict decoding cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if c.Defaults.Timezone != "" {
		if _, err := time.LoadLocation(c.Defaults.Timezone); err != nil {
			return fmt.Errorf("defaults.timezone: %w", err)
		}
	}
	if c.BotList.Enabled && (c.BotList.URL == "" || c.BotList.Token == "") {
		return errors.New("botlist needs both url and token when enabled")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.reminder_tick", c.Scheduler.ReminderTick},
		{"scheduler.interval_tick", c.Scheduler.IntervalTick},
		{"scheduler.orphan_tick", c.Scheduler.OrphanTick},
		{"scheduler.count_tick", c.Scheduler.CountTick},
		{"scheduler.allowed_delay", c.Scheduler.AllowedDelay},
		{"scheduler.allowed_jitter", c.Scheduler.AllowedJitter},
		{"botlist.interval", c.BotList.Interval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}
