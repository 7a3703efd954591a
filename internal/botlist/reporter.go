// Package botlist periodically reports the bot's guild count to a listing
// site. Purely cosmetic: failures are logged and retried on the next tick,
// never escalated.
package botlist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"remindbot/internal/analytics"
	logx "remindbot/pkg/logx"
)

type Config struct {
	URL      string
	Token    string
	Interval time.Duration // default 30m
}

// GuildCounter is the slice of the store the reporter needs.
type GuildCounter interface {
	GetGuildCount(ctx context.Context) (int, error)
}

type Reporter struct {
	cfg    Config
	store  GuildCounter
	sink   analytics.Sink
	log    logx.Logger
	client *http.Client
}

func New(cfg Config, store GuildCounter, sink analytics.Sink, log logx.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if sink == nil {
		sink = analytics.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		cfg: cfg, store: store, sink: sink, log: log,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Run reports immediately, then on every tick until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	r.report(ctx)
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	n, err := r.store.GetGuildCount(ctx)
	if err != nil {
		r.log.Warn("botlist: guild count query failed", logx.Err(err))
		return
	}
	r.sink.SetGuildCount(n)

	if err := r.post(ctx, n); err != nil {
		r.log.Warn("botlist: report failed", logx.Err(err))
		return
	}
	r.log.Debug("botlist: reported", logx.Int("guilds", n))
}

func (r *Reporter) post(ctx context.Context, count int) error {
	body, err := json.Marshal(map[string]int{"guildCount": count})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.cfg.Token)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("listing endpoint returned %d", resp.StatusCode)
	}
	return nil
}
