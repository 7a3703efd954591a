package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return NewManager(path)
}

const validYAML = `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: "./remind.db"
  busy_timeout: "2s"
scheduler:
  reminder_tick: "50s"
  interval_tick: "45s"
defaults:
  timezone: "Europe/Berlin"
  render_mode: "hybrid"
ops:
  enabled: true
  addr: "127.0.0.1:9180"
`

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Storage.Path != "./remind.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Defaults.Timezone != "Europe/Berlin" {
		t.Fatalf("timezone = %q", cfg.Defaults.Timezone)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed snapshot")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML+"\nshedulor:\n  enabled: true\n")
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown-field rejection", err)
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, strings.Replace(validYAML, `token: "123:abc"`, `token: ""`, 1))
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("err = %v, want token validation error", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, strings.Replace(validYAML, `reminder_tick: "50s"`, `reminder_tick: "fifty"`, 1))
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "reminder_tick") {
		t.Fatalf("err = %v, want duration validation error", err)
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, strings.Replace(validYAML, "Europe/Berlin", "Mars/Olympus", 1))
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "timezone") {
		t.Fatalf("err = %v, want timezone validation error", err)
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, validYAML)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received a different snapshot")
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel must be closed after Unsubscribe")
	}
}
