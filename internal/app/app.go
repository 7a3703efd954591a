// Package app wires the bot together: config, logging, storage, transport,
// delivery, scheduler and the operational surfaces.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"remindbot/internal/analytics"
	"remindbot/internal/botlist"
	"remindbot/internal/config"
	"remindbot/internal/delivery"
	teleadapter "remindbot/internal/notifier/telebot"
	"remindbot/internal/ops"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logs   *logx.Service
	log    logx.Logger

	sup     *supervisor.Supervisor
	store   storage.Store
	adapter *teleadapter.Adapter

	ready atomic.Bool
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg))
	mgr.SetLogger(log.With(logx.String("svc", "config")))

	return &App{cfgMgr: mgr, logs: logs, log: log}, nil
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("svc", "supervisor"))))

	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy},
		a.log.With(logx.String("svc", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	adapter, err := teleadapter.New(teleadapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		SendRate:    cfg.Telegram.SendRate,
		Burst:       cfg.Telegram.Burst,
	}, a.log.With(logx.String("svc", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter
	if err := adapter.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := analytics.NewCollector(registry)

	pipeline := delivery.NewPipeline(adapter, store, collector,
		a.log.With(logx.String("svc", "delivery")))

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		return err
	}
	sched := scheduler.New(schedCfg, store, pipeline, collector,
		a.log.With(logx.String("svc", "scheduler")), adapter.Ready())
	sched.Run(a.sup)

	if cfg.Ops.Enabled {
		srv := ops.New(ops.Config{Addr: cfg.Ops.Addr}, registry, a.ready.Load,
			a.log.With(logx.String("svc", "ops")))
		a.sup.Go("ops", srv.Run)
	}

	if cfg.BotList.Enabled {
		interval, _ := config.ParseDurationField("botlist.interval", cfg.BotList.Interval)
		rep := botlist.New(botlist.Config{
			URL:      cfg.BotList.URL,
			Token:    cfg.BotList.Token,
			Interval: interval,
		}, store, collector, a.log.With(logx.String("svc", "botlist")))
		a.sup.GoRestart("botlist", rep.Run)
	}

	a.sup.GoRestart("config.watch", a.cfgMgr.Watch)
	a.watchConfig()

	// Readiness gate: flips once the poller is up, then tells systemd.
	a.sup.Go0("ready", func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-adapter.Ready():
			a.ready.Store(true)
			_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
			a.log.Info("bot ready")
		}
	})

	return nil
}

// watchConfig re-applies the live-tunable settings on every published
// snapshot. Only logging is hot today; transport and storage changes need a
// restart.
func (a *App) watchConfig() {
	sub := a.cfgMgr.Subscribe(1)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logCfg(cfg))
				a.log.Info("logging settings re-applied",
					logx.String("level", cfg.Logging.Level))
			}
		}
	})
}

func schedulerConfig(sc config.SchedulerConfig) (scheduler.Config, error) {
	def := scheduler.DefaultConfig()
	out := scheduler.Config{}
	for _, f := range []struct {
		path string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"scheduler.reminder_tick", sc.ReminderTick, &out.ReminderTick, def.ReminderTick},
		{"scheduler.interval_tick", sc.IntervalTick, &out.IntervalTick, def.IntervalTick},
		{"scheduler.orphan_tick", sc.OrphanTick, &out.OrphanTick, def.OrphanTick},
		{"scheduler.count_tick", sc.CountTick, &out.CountTick, def.CountTick},
		{"scheduler.allowed_delay", sc.AllowedDelay, &out.AllowedDelay, def.AllowedDelay},
		{"scheduler.allowed_jitter", sc.AllowedJitter, &out.AllowedJitter, def.AllowedJitter},
	} {
		d, err := config.ParseDurationOrDefault(f.path, f.raw, f.def)
		if err != nil {
			return scheduler.Config{}, err
		}
		*f.dst = d
	}
	return out, nil
}

// Stop drains in order: scheduler loops first so no new sends start, then
// the transport, then storage.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.adapter != nil {
		if err := a.adapter.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}
