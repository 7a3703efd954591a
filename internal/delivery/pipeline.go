package delivery

import (
	"context"
	"fmt"

	"remindbot/internal/analytics"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// Prefs supplies the per-scope rendering preference.
type Prefs interface {
	GetRenderMode(ctx context.Context, scopeID int64) (reminder.RenderMode, error)
}

// Pipeline walks the delivery chain for one reminder at a time.
type Pipeline struct {
	notifier Notifier
	prefs    Prefs
	sink     analytics.Sink
	log      logx.Logger
}

func NewPipeline(n Notifier, prefs Prefs, sink analytics.Sink, log logx.Logger) *Pipeline {
	if sink == nil {
		sink = analytics.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{notifier: n, prefs: prefs, sink: sink, log: log}
}

// Deliver pushes rem down the chain and reports where it landed. The error
// return is reserved for transport-level surprises; every anticipated miss
// is encoded in the Outcome instead.
func (p *Pipeline) Deliver(ctx context.Context, rem reminder.Reminder) (Outcome, error) {
	if rem.IsDM() {
		return p.deliverDM(ctx, rem)
	}
	return p.deliverGuild(ctx, rem)
}

func (p *Pipeline) deliverGuild(ctx context.Context, rem reminder.Reminder) (Outcome, error) {
	ch, err := p.notifier.ResolveChannel(ctx, rem.GuildID, rem.ChannelID)
	if err != nil {
		return Outcome{Status: Failed}, err
	}

	switch ch.Capability {
	case CapUnresolvable, CapNotPostable:
		// The channel is gone or unusable; tell the target directly.
		note := fmt.Sprintf("The channel this reminder was created in is no longer reachable, so it arrives here instead (channel id %d).", rem.ChannelID)
		return p.fallbackDM(ctx, rem, note)
	case CapLockedThread:
		// A locked thread is a deliberate signal to stay quiet.
		p.log.Debug("delivery: suppressed, thread locked",
			logx.String("id", rem.ID), logx.Int64("channel", rem.ChannelID))
		return Outcome{Status: Suppressed}, nil
	}

	mode, err := p.prefs.GetRenderMode(ctx, rem.GuildID)
	if err != nil {
		p.log.Warn("delivery: render mode lookup failed, using hybrid", logx.Err(err))
		mode = reminder.ModeHybrid
	}

	res, err := p.notifier.SendChannel(ctx, ch, Content{Mode: mode, Reminder: rem})
	if err != nil {
		return Outcome{Status: Failed}, err
	}
	switch res {
	case SendOK:
		return Outcome{Status: Delivered}, nil
	case SendNotFound:
		note := fmt.Sprintf("The channel this reminder was created in disappeared mid-delivery (channel id %d).", rem.ChannelID)
		return p.fallbackDM(ctx, rem, note)
	}

	// Permission denied: retry once as bare text, then give up on the channel.
	res, err = p.notifier.SendChannel(ctx, ch, Content{
		Mode:     reminder.ModeBarebone,
		Reminder: rem,
		Hint:     "The rich rendering was rejected here, delivering as plain text.",
	})
	if err != nil {
		return Outcome{Status: Failed}, err
	}
	if res == SendOK {
		return Outcome{Status: DeliveredDegraded}, nil
	}
	note := fmt.Sprintf("I am not allowed to post in the channel this reminder was created in (channel id %d).", rem.ChannelID)
	return p.fallbackDM(ctx, rem, note)
}

func (p *Pipeline) deliverDM(ctx context.Context, rem reminder.Reminder) (Outcome, error) {
	return p.fallbackDM(ctx, rem, "")
}

// fallbackDM tries the target's direct messages, escalating to the author on
// failure.
func (p *Pipeline) fallbackDM(ctx context.Context, rem reminder.Reminder, note string) (Outcome, error) {
	target, ok, err := p.notifier.ResolveUser(ctx, rem.Target)
	if err != nil {
		// Transport trouble, not a vanished account; the next tick retries.
		return Outcome{Status: Failed}, err
	}
	if !ok {
		p.sink.DeliveryFailed(analytics.FailTargetFetch)
		return p.warnAuthor(ctx, rem, analytics.FailTargetFetch,
			fmt.Sprintf("I could not find the account your reminder was addressed to (user id %d).", rem.Target))
	}
	if target.IsBot {
		p.sink.DeliveryFailed(analytics.FailTargetIsBot)
		return p.warnAuthor(ctx, rem, analytics.FailTargetIsBot,
			fmt.Sprintf("Your reminder was addressed to a bot (@%s), which cannot receive messages.", target.Username))
	}

	mode, err := p.prefs.GetRenderMode(ctx, rem.Target)
	if err != nil {
		mode = reminder.ModeHybrid
	}
	res, err := p.notifier.SendDM(ctx, target, Content{Mode: mode, Reminder: rem, Note: note})
	if err != nil {
		return Outcome{Status: Failed}, err
	}
	if res == SendOK {
		if rem.IsDM() && note == "" {
			return Outcome{Status: Delivered}, nil
		}
		return Outcome{Status: DeliveredDM, Note: note}, nil
	}

	p.sink.DeliveryFailed(analytics.FailTargetDM)
	return p.warnAuthor(ctx, rem, analytics.FailTargetDM,
		fmt.Sprintf("I could not open a direct conversation with @%s for your reminder.", target.Username))
}

// warnAuthor is the end of the chain. When author and target are the same
// account the warning would hit the wall that just failed, so the walk stops
// with the single failure already recorded.
func (p *Pipeline) warnAuthor(ctx context.Context, rem reminder.Reminder, failure analytics.FailurePoint, warning string) (Outcome, error) {
	if rem.IsSelf() {
		return Outcome{Status: Failed, Failure: failure}, nil
	}

	author, ok, err := p.notifier.ResolveUser(ctx, rem.Author)
	if err != nil {
		return Outcome{Status: Failed, Failure: failure}, err
	}
	if !ok {
		p.sink.DeliveryFailed(analytics.FailAuthorFetch)
		return Outcome{Status: Failed, Failure: failure}, nil
	}

	res, err := p.notifier.SendDM(ctx, author, Content{
		Mode:     reminder.ModeTextOnly,
		Reminder: rem,
		Note:     warning,
	})
	if err != nil {
		return Outcome{Status: Failed, Failure: failure}, err
	}
	if res != SendOK {
		p.sink.DeliveryFailed(analytics.FailAuthorDM)
		return Outcome{Status: Failed, Failure: failure}, nil
	}
	return Outcome{Status: AuthorWarned, Failure: failure, Note: warning}, nil
}
