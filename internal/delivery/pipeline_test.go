package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/analytics"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

type fakeNotifier struct {
	channel    Channel
	channelErr error

	users   map[int64]Identity
	userErr error

	channelResults []SendResult
	dmResults      map[int64][]SendResult

	channelSends []Content
	dmSends      []dmSend
}

type dmSend struct {
	to      int64
	content Content
}

func (f *fakeNotifier) ResolveChannel(_ context.Context, guildID, channelID int64) (Channel, error) {
	if f.channelErr != nil {
		return Channel{}, f.channelErr
	}
	ch := f.channel
	ch.GuildID, ch.ID = guildID, channelID
	return ch, nil
}

func (f *fakeNotifier) ResolveUser(_ context.Context, userID int64) (Identity, bool, error) {
	if f.userErr != nil {
		return Identity{}, false, f.userErr
	}
	id, ok := f.users[userID]
	return id, ok, nil
}

func (f *fakeNotifier) SendChannel(_ context.Context, _ Channel, c Content) (SendResult, error) {
	f.channelSends = append(f.channelSends, c)
	if len(f.channelResults) == 0 {
		return SendOK, nil
	}
	res := f.channelResults[0]
	f.channelResults = f.channelResults[1:]
	return res, nil
}

func (f *fakeNotifier) SendDM(_ context.Context, to Identity, c Content) (SendResult, error) {
	f.dmSends = append(f.dmSends, dmSend{to: to.ID, content: c})
	if len(f.dmResults[to.ID]) == 0 {
		return SendOK, nil
	}
	res := f.dmResults[to.ID][0]
	f.dmResults[to.ID] = f.dmResults[to.ID][1:]
	return res, nil
}

type recordingSink struct {
	analytics.Nop
	failures []analytics.FailurePoint
}

func (r *recordingSink) DeliveryFailed(p analytics.FailurePoint) { r.failures = append(r.failures, p) }

type staticPrefs struct{ mode reminder.RenderMode }

func (s staticPrefs) GetRenderMode(context.Context, int64) (reminder.RenderMode, error) {
	return s.mode, nil
}

func guildReminder() reminder.Reminder {
	return reminder.Reminder{
		ID: "r1", Author: 10, Target: 20, GuildID: 100, ChannelID: 200,
		Message: "pay rent", TriggerAt: time.Now(),
	}
}

func newPipeline(f *fakeNotifier, sink analytics.Sink) *Pipeline {
	return NewPipeline(f, staticPrefs{mode: reminder.ModeHybrid}, sink, logx.Nop())
}

func TestDeliverGuildHappyPath(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{channel: Channel{Capability: CapPostable}, users: map[int64]Identity{}}
	sink := &recordingSink{}

	out, err := newPipeline(f, sink).Deliver(context.Background(), guildReminder())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != Delivered {
		t.Fatalf("status = %v, want Delivered", out.Status)
	}
	if len(f.channelSends) != 1 || f.channelSends[0].Mode != reminder.ModeHybrid {
		t.Fatalf("channel sends = %+v, want one hybrid send", f.channelSends)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("unexpected failure metrics: %v", sink.failures)
	}
}

func TestDeliverGuildDegradesOnPermissionDenied(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{
		channel:        Channel{Capability: CapPostable},
		channelResults: []SendResult{SendPermissionDenied, SendOK},
		users:          map[int64]Identity{},
	}
	sink := &recordingSink{}

	out, err := newPipeline(f, sink).Deliver(context.Background(), guildReminder())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != DeliveredDegraded {
		t.Fatalf("status = %v, want DeliveredDegraded", out.Status)
	}
	if len(f.channelSends) != 2 {
		t.Fatalf("channel sends = %d, want 2", len(f.channelSends))
	}
	if retry := f.channelSends[1]; retry.Mode != reminder.ModeBarebone || retry.Hint == "" {
		t.Fatalf("retry send = %+v, want barebone with hint", retry)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("degraded delivery must not count as a failure: %v", sink.failures)
	}
}

func TestDeliverGuildLockedThreadSuppresses(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{channel: Channel{Capability: CapLockedThread}, users: map[int64]Identity{}}
	sink := &recordingSink{}

	out, err := newPipeline(f, sink).Deliver(context.Background(), guildReminder())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != Suppressed {
		t.Fatalf("status = %v, want Suppressed", out.Status)
	}
	if len(f.channelSends)+len(f.dmSends) != 0 {
		t.Fatal("suppressed delivery must not send anything")
	}
	if len(sink.failures) != 0 {
		t.Fatalf("suppression is not a failure: %v", sink.failures)
	}
}

func TestDeliverGuildMissingChannelFallsBackToDM(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{
		channel: Channel{Capability: CapUnresolvable},
		users:   map[int64]Identity{20: {ID: 20, Username: "alice"}},
	}
	sink := &recordingSink{}

	out, err := newPipeline(f, sink).Deliver(context.Background(), guildReminder())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != DeliveredDM {
		t.Fatalf("status = %v, want DeliveredDM", out.Status)
	}
	if len(f.dmSends) != 1 || f.dmSends[0].to != 20 {
		t.Fatalf("dm sends = %+v, want one to the target", f.dmSends)
	}
	if !strings.Contains(f.dmSends[0].content.Note, "no longer reachable") {
		t.Fatalf("fallback note missing: %q", f.dmSends[0].content.Note)
	}
}

func TestDeliverBotTargetWarnsAuthor(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{
		channel: Channel{Capability: CapUnresolvable},
		users: map[int64]Identity{
			10: {ID: 10, Username: "author"},
			20: {ID: 20, Username: "helperbot", IsBot: true},
		},
	}
	sink := &recordingSink{}

	out, err := newPipeline(f, sink).Deliver(context.Background(), guildReminder())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != AuthorWarned || out.Failure != analytics.FailTargetIsBot {
		t.Fatalf("outcome = %+v, want AuthorWarned/target_is_bot", out)
	}
	if len(f.dmSends) != 1 || f.dmSends[0].to != 10 {
		t.Fatalf("dm sends = %+v, want the author warning only", f.dmSends)
	}
	if !out.Unresolvable() {
		t.Fatal("bot target should flag the reminder as unresolvable")
	}
}

func TestDeliverSelfReminderSingleMetric(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{
		users:     map[int64]Identity{10: {ID: 10, Username: "alice"}},
		dmResults: map[int64][]SendResult{10: {SendPermissionDenied}},
	}
	sink := &recordingSink{}

	rem := reminder.Reminder{ID: "r2", Author: 10, Target: 10, Message: "hi", TriggerAt: time.Now()}
	out, err := newPipeline(f, sink).Deliver(context.Background(), rem)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != Failed || out.Failure != analytics.FailTargetDM {
		t.Fatalf("outcome = %+v, want Failed/target_dm", out)
	}
	// The author is the target; warning them would hit the same wall.
	if len(f.dmSends) != 1 {
		t.Fatalf("dm sends = %d, want 1 (no author warning)", len(f.dmSends))
	}
	if len(sink.failures) != 1 || sink.failures[0] != analytics.FailTargetDM {
		t.Fatalf("failures = %v, want exactly [target_dm]", sink.failures)
	}
}

func TestDeliverDMHappyPath(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{users: map[int64]Identity{20: {ID: 20, Username: "alice"}}}
	sink := &recordingSink{}

	rem := reminder.Reminder{ID: "r3", Author: 10, Target: 20, Message: "hi", TriggerAt: time.Now()}
	out, err := newPipeline(f, sink).Deliver(context.Background(), rem)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != Delivered {
		t.Fatalf("status = %v, want Delivered", out.Status)
	}
}

func TestDeliverVanishedTargetMarksUnresolvable(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{users: map[int64]Identity{}} // nobody resolvable
	sink := &recordingSink{}

	rem := reminder.Reminder{ID: "r4", Author: 10, Target: 20, Message: "hi", TriggerAt: time.Now()}
	out, err := newPipeline(f, sink).Deliver(context.Background(), rem)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.Status != Failed || out.Failure != analytics.FailTargetFetch {
		t.Fatalf("outcome = %+v, want Failed/target_fetch", out)
	}
	if !out.Unresolvable() {
		t.Fatal("vanished target should flag the reminder as unresolvable")
	}
	// target_fetch, then author_fetch for the failed warning.
	if len(sink.failures) != 2 || sink.failures[1] != analytics.FailAuthorFetch {
		t.Fatalf("failures = %v, want [target_fetch author_fetch]", sink.failures)
	}
}

func TestDeliverResolveTimeoutIsNotUnresolvable(t *testing.T) {
	t.Parallel()
	f := &fakeNotifier{userErr: context.DeadlineExceeded}
	sink := &recordingSink{}

	rem := reminder.Reminder{ID: "r5", Author: 10, Target: 20, Message: "hi", TriggerAt: time.Now()}
	out, err := newPipeline(f, sink).Deliver(context.Background(), rem)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want the transport error surfaced", err)
	}
	if out.Status != Failed || out.Failure != "" {
		t.Fatalf("outcome = %+v, want Failed without a failure point", out)
	}
	// A flaky lookup must never look like a vanished account, or a recurring
	// reminder would get flagged and swept over a hiccup.
	if out.Unresolvable() {
		t.Fatal("transport error must not mark the reminder unresolvable")
	}
	if len(sink.failures) != 0 {
		t.Fatalf("failures = %v, want none", sink.failures)
	}
	if len(f.dmSends) != 0 {
		t.Fatalf("dm sends = %v, want none", f.dmSends)
	}
}
