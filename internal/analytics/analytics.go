// Package analytics records operational counters for reminder lifecycle,
// delivery outcomes and scheduler health.
package analytics

import "time"

// Cause labels why a reminder or interval left the store.
type Cause string

const (
	CauseUser   Cause = "user"   // deleted on request
	CauseKick   Cause = "kick"   // bot removed from the group
	CauseOrphan Cause = "orphan" // swept after losing its target
)

// FailurePoint labels where in the delivery chain a send attempt died.
type FailurePoint string

const (
	FailTargetFetch FailurePoint = "target_fetch"
	FailTargetIsBot FailurePoint = "target_is_bot"
	FailTargetDM    FailurePoint = "target_dm"
	FailAuthorFetch FailurePoint = "author_fetch"
	FailAuthorDM    FailurePoint = "author_dm"
)

// Sink receives lifecycle and delivery events. Implementations must be safe
// for concurrent use; every method is fire-and-forget.
type Sink interface {
	GuildAdded()
	GuildRemoved()

	ReminderCreated()
	ReminderDeleted(cause Cause, n int)
	IntervalCreated()
	IntervalDeleted(cause Cause, n int)

	DeliveryFailed(point FailurePoint)
	DeliveryDelay(kind string, delay, allowed time.Duration)
	Exception(task string)

	SetReminderCount(n int)
	SetIntervalCount(n int)
	SetGuildCount(n int)
}

// Nop discards every event.
type Nop struct{}

func (Nop) GuildAdded()                                    {}
func (Nop) GuildRemoved()                                  {}
func (Nop) ReminderCreated()                               {}
func (Nop) ReminderDeleted(Cause, int)                     {}
func (Nop) IntervalCreated()                               {}
func (Nop) IntervalDeleted(Cause, int)                     {}
func (Nop) DeliveryFailed(FailurePoint)                    {}
func (Nop) DeliveryDelay(string, time.Duration, time.Duration) {}
func (Nop) Exception(string)                               {}
func (Nop) SetReminderCount(int)                           {}
func (Nop) SetIntervalCount(int)                           {}
func (Nop) SetGuildCount(int)                              {}

var _ Sink = Nop{}
