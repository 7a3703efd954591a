// Package telebot adapts a Telegram bot connection to the delivery.Notifier
// interface. Groups play the role of guilds, forum topics the role of
// channels, private chats the role of direct messages.
package telebot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/delivery"
	logx "remindbot/pkg/logx"
)

// Config configures the Telegram transport.
type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRate caps outgoing messages per second; Telegram throttles bots
	// around 30/s globally.
	SendRate float64
	Burst    int
}

type topicKey struct {
	chat   int64
	thread int
}

// Adapter is a delivery.Notifier backed by telebot long polling.
type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	ready     chan struct{}
	readyOnce sync.Once

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	runWG   sync.WaitGroup

	// Topics observed as closed. Consulted by ResolveChannel so the
	// pipeline can suppress instead of burning a send attempt.
	lockedMu sync.Mutex
	locked   map[topicKey]time.Time
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.Burst),
		ready:   make(chan struct{}),
		locked:  map[topicKey]time.Time{},
	}, nil
}

// Ready is closed once the poller is up and sends may flow.
func (a *Adapter) Ready() <-chan struct{} { return a.ready }

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("telegram polling started",
			logx.String("bot", a.bot.Me.Username))
		a.readyOnce.Do(func() { close(a.ready) })
		a.bot.Start() // blocks until Stop
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Keep shutdown snappy even if the long-poll is mid-flight.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("telegram polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed, continuing shutdown")
		return nil
	}
}

func (a *Adapter) ResolveChannel(ctx context.Context, guildID, channelID int64) (delivery.Channel, error) {
	ch := delivery.Channel{GuildID: guildID, ID: channelID}

	chat, err := a.bot.ChatByID(guildID)
	if err != nil {
		if isNotFound(err) {
			ch.Capability = delivery.CapUnresolvable
			return ch, nil
		}
		return ch, fmt.Errorf("resolve chat %d: %w", guildID, err)
	}
	ch.Name = chat.Title

	a.lockedMu.Lock()
	_, isLocked := a.locked[topicKey{chat: guildID, thread: int(channelID)}]
	a.lockedMu.Unlock()
	if isLocked {
		ch.Capability = delivery.CapLockedThread
		return ch, nil
	}

	ch.Capability = delivery.CapPostable
	return ch, nil
}

func (a *Adapter) ResolveUser(ctx context.Context, userID int64) (delivery.Identity, bool, error) {
	chat, err := a.bot.ChatByID(userID)
	if err != nil {
		if isNotFound(err) {
			return delivery.Identity{}, false, nil
		}
		return delivery.Identity{}, false, fmt.Errorf("resolve user %d: %w", userID, err)
	}
	return delivery.Identity{
		ID:       chat.ID,
		Username: chat.Username,
		// Telegram reserves the suffix for bot accounts.
		IsBot: strings.HasSuffix(strings.ToLower(chat.Username), "bot"),
	}, true, nil
}

func (a *Adapter) SendChannel(ctx context.Context, ch delivery.Channel, c delivery.Content) (delivery.SendResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	_, err := a.bot.Send(
		&tele.Chat{ID: ch.GuildID},
		render(c),
		&tele.SendOptions{ThreadID: int(ch.ID), DisableWebPagePreview: true},
	)
	if err == nil {
		return delivery.SendOK, nil
	}
	res, mapped := a.mapSendError(err)
	if mapped && res == delivery.SendPermissionDenied && isTopicClosed(err) {
		a.lockedMu.Lock()
		a.locked[topicKey{chat: ch.GuildID, thread: int(ch.ID)}] = time.Now()
		a.lockedMu.Unlock()
	}
	if !mapped {
		return 0, fmt.Errorf("send to chat %d: %w", ch.GuildID, err)
	}
	return res, nil
}

func (a *Adapter) SendDM(ctx context.Context, to delivery.Identity, c delivery.Content) (delivery.SendResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	_, err := a.bot.Send(&tele.Chat{ID: to.ID}, render(c), &tele.SendOptions{DisableWebPagePreview: true})
	if err == nil {
		return delivery.SendOK, nil
	}
	if res, ok := a.mapSendError(err); ok {
		return res, nil
	}
	return 0, fmt.Errorf("send dm to %d: %w", to.ID, err)
}

// mapSendError folds the Telegram error zoo into the two anticipated
// non-success results. Anything else stays an error.
func (a *Adapter) mapSendError(err error) (delivery.SendResult, bool) {
	switch {
	case isNotFound(err):
		return delivery.SendNotFound, true
	case isPermissionDenied(err):
		return delivery.SendPermissionDenied, true
	}
	return 0, false
}

func isNotFound(err error) bool {
	if errors.Is(err, tele.ErrChatNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "user not found") ||
		strings.Contains(msg, "user is deactivated")
}

func isPermissionDenied(err error) bool {
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrNotStartedByUser) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not enough rights") ||
		strings.Contains(msg, "have no rights") ||
		strings.Contains(msg, "bot was blocked") ||
		isTopicClosed(err)
}

func isTopicClosed(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "TOPIC_CLOSED")
}
