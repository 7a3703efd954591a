package telebot

import (
	"fmt"
	"strings"

	"remindbot/internal/delivery"
	"remindbot/internal/reminder"
)

// render turns a Content into the outgoing message text. Telegram has no
// embed cards, so the embed modes become a framed block instead.
func render(c delivery.Content) string {
	var b strings.Builder

	if c.Note != "" {
		b.WriteString(c.Note)
		b.WriteString("\n\n")
	}
	if c.Hint != "" {
		b.WriteString(c.Hint)
		b.WriteString("\n\n")
	}

	rem := c.Reminder
	switch c.Mode {
	case reminder.ModeBarebone:
		b.WriteString(rem.Message)
	case reminder.ModeTextOnly:
		fmt.Fprintf(&b, "%s %s", mention(rem.Target), rem.Message)
	default:
		// embedOnly and hybrid share the framed block; hybrid adds the
		// mention line on top.
		if c.Mode == reminder.ModeHybrid {
			b.WriteString(mention(rem.Target))
			b.WriteString("\n")
		}
		b.WriteString("⏰ Reminder\n")
		b.WriteString(rem.Message)
		b.WriteString("\n")
		fmt.Fprintf(&b, "— set %s", rem.CreatedAt.UTC().Format("2006-01-02 15:04"))
		if !rem.TriggerAt.IsZero() {
			fmt.Fprintf(&b, ", due %s", rem.TriggerAt.UTC().Format("2006-01-02 15:04"))
		}
	}
	return b.String()
}

func mention(userID int64) string {
	// Text mention link; works without knowing the username.
	return fmt.Sprintf("[reminder for you](tg://user?id=%d)", userID)
}
