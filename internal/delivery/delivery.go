// Package delivery pushes due reminders to their destinations, walking a
// fallback chain from the original channel down to direct messages and,
// last of all, a warning to the author.
package delivery

import (
	"context"

	"remindbot/internal/analytics"
	"remindbot/internal/reminder"
)

// Capability describes what the bot can do with a resolved channel.
type Capability int

const (
	CapPostable Capability = iota
	CapArchivedThread
	CapLockedThread
	CapNotPostable
	CapUnresolvable
)

// Channel is a resolved group destination.
type Channel struct {
	GuildID    int64
	ID         int64
	Name       string
	Capability Capability
}

// Identity is a resolved account.
type Identity struct {
	ID       int64
	Username string
	IsBot    bool
}

// SendResult classifies the outcome of a single send attempt.
type SendResult int

const (
	SendOK SendResult = iota
	SendPermissionDenied
	SendNotFound
)

// Content is a renderable reminder payload. Note carries fallback context
// ("your channel disappeared, ..."), Hint carries degradation context.
type Content struct {
	Mode     reminder.RenderMode
	Reminder reminder.Reminder
	Note     string
	Hint     string
}

// Notifier is the transport the pipeline delivers through.
type Notifier interface {
	// ResolveChannel looks a group destination up, reporting its capability.
	// The error is reserved for transport failures; an unusable channel
	// comes back with CapUnresolvable and a nil error.
	ResolveChannel(ctx context.Context, guildID, channelID int64) (Channel, error)
	// ResolveUser looks an account up. A vanished account comes back with
	// ok == false and a nil error; the error is again reserved for transport
	// failures, which must not be mistaken for a gone account.
	ResolveUser(ctx context.Context, userID int64) (id Identity, ok bool, err error)
	SendChannel(ctx context.Context, ch Channel, c Content) (SendResult, error)
	SendDM(ctx context.Context, to Identity, c Content) (SendResult, error)
}

// Status is the terminal state of one delivery walk.
type Status int

const (
	// Delivered in the requested channel with the configured rendering.
	Delivered Status = iota
	// DeliveredDegraded landed in the channel, but only as plain text.
	DeliveredDegraded
	// DeliveredDM fell back to the target's direct messages.
	DeliveredDM
	// AuthorWarned could not reach the target; the author got a notice.
	AuthorWarned
	// Suppressed is a deliberate non-delivery (locked thread).
	Suppressed
	// Failed exhausted the chain without reaching anyone.
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case DeliveredDegraded:
		return "delivered_degraded"
	case DeliveredDM:
		return "delivered_dm"
	case AuthorWarned:
		return "author_warned"
	case Suppressed:
		return "suppressed"
	}
	return "failed"
}

// Outcome reports where a delivery ended up. Failure is set only for
// AuthorWarned and Failed terminals.
type Outcome struct {
	Status  Status
	Failure analytics.FailurePoint
	Note    string
}

// Unresolvable reports whether the outcome indicates the destination is gone
// for good, so a recurring reminder should be flagged as orphaned.
func (o Outcome) Unresolvable() bool {
	if o.Status != Failed && o.Status != AuthorWarned {
		return false
	}
	switch o.Failure {
	case analytics.FailTargetFetch, analytics.FailTargetIsBot:
		return true
	}
	return false
}
