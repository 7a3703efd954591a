package reminder

import (
	"strings"
	"time"

	"remindbot/internal/recurrence"
)

// RenderMode selects how much fidelity a delivered reminder carries.
// The pipeline only picks the mode; rendering itself belongs to the notifier.
type RenderMode string

const (
	// ModeBarebone is plain text without any mention decoration.
	ModeBarebone RenderMode = "barebone"
	// ModeTextOnly is plain text with the usual target mention.
	ModeTextOnly RenderMode = "textOnly"
	// ModeEmbedOnly is the rich card without supplementary text.
	ModeEmbedOnly RenderMode = "embedOnly"
	// ModeHybrid is the rich card plus supplementary text.
	ModeHybrid RenderMode = "hybrid"
)

// ParseRenderMode maps a config string onto a RenderMode.
// Unknown values fall back to hybrid, the most capable mode.
func ParseRenderMode(s string) RenderMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "barebone":
		return ModeBarebone
	case "textonly", "text_only", "text":
		return ModeTextOnly
	case "embedonly", "embed_only", "embed":
		return ModeEmbedOnly
	default:
		return ModeHybrid
	}
}

// Kind tags metrics and log lines by reminder flavor.
type Kind string

const (
	KindOneShot  Kind = "reminder"
	KindInterval Kind = "interval"
)

// Reminder is a single scheduled notification.
//
// All instants are UTC. Timezones only exist at the parsing (input) and
// rendering (output) edges.
type Reminder struct {
	ID        string
	Author    int64
	Target    int64
	GuildID   int64 // 0 means direct-message reminder
	ChannelID int64
	Message   string
	TriggerAt time.Time
	CreatedAt time.Time
}

// IsDM reports whether the reminder goes straight to a direct message.
func (r Reminder) IsDM() bool { return r.GuildID == 0 }

// IsSelf reports whether author and target are the same identity.
func (r Reminder) IsSelf() bool { return r.Author == r.Target }

// IntervalReminder is a recurring reminder. It is mutated in place: every
// firing recomputes At to the next occurrence and persists it before the
// delivery attempt, so a crash mid-send can skip but never double-fire.
type IntervalReminder struct {
	Reminder

	Rule recurrence.Rule
	At   time.Time // next trigger, UTC
}
