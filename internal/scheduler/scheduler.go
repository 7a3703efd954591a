// Package scheduler drives the periodic work: firing due reminders,
// advancing recurring intervals, sweeping orphans and refreshing counters.
package scheduler

import (
	"context"
	"time"

	"remindbot/internal/analytics"
	"remindbot/internal/delivery"
	"remindbot/internal/recurrence"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Config sets the cadences and lateness thresholds of the periodic tasks.
type Config struct {
	ReminderTick  time.Duration
	IntervalTick  time.Duration
	OrphanTick    time.Duration
	CountTick     time.Duration
	AllowedDelay  time.Duration // one-shot reminders
	AllowedJitter time.Duration // recurring intervals, which tolerate more lag
}

// DefaultConfig returns the production cadences.
func DefaultConfig() Config {
	return Config{
		ReminderTick:  50 * time.Second,
		IntervalTick:  45 * time.Second,
		OrphanTick:    24 * time.Hour,
		CountTick:     15 * time.Minute,
		AllowedDelay:  time.Minute,
		AllowedJitter: 2 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ReminderTick <= 0 {
		c.ReminderTick = d.ReminderTick
	}
	if c.IntervalTick <= 0 {
		c.IntervalTick = d.IntervalTick
	}
	if c.OrphanTick <= 0 {
		c.OrphanTick = d.OrphanTick
	}
	if c.CountTick <= 0 {
		c.CountTick = d.CountTick
	}
	if c.AllowedDelay <= 0 {
		c.AllowedDelay = d.AllowedDelay
	}
	if c.AllowedJitter <= 0 {
		c.AllowedJitter = d.AllowedJitter
	}
}

// Deliverer pushes one due reminder down the delivery chain.
type Deliverer interface {
	Deliver(ctx context.Context, rem reminder.Reminder) (delivery.Outcome, error)
}

// Service owns the periodic loops. Loops hold off until ready is closed so
// nothing fires before the transport finished connecting.
type Service struct {
	cfg     Config
	store   storage.Store
	deliver Deliverer
	sink    analytics.Sink
	log     logx.Logger
	ready   <-chan struct{}
	now     func() time.Time
}

func New(cfg Config, store storage.Store, d Deliverer, sink analytics.Sink, log logx.Logger, ready <-chan struct{}) *Service {
	cfg.applyDefaults()
	if sink == nil {
		sink = analytics.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg, store: store, deliver: d, sink: sink, log: log,
		ready: ready, now: func() time.Time { return time.Now().UTC() },
	}
}

// Run registers the periodic loops on sup. It returns immediately.
func (s *Service) Run(sup *supervisor.Supervisor) {
	sup.GoRestart("scheduler.reminders", s.loop("reminders", s.cfg.ReminderTick, s.checkReminders))
	sup.GoRestart("scheduler.intervals", s.loop("intervals", s.cfg.IntervalTick, s.checkIntervals))
	sup.GoRestart("scheduler.orphans", s.loop("orphans", s.cfg.OrphanTick, s.sweepOrphans))
	sup.GoRestart("scheduler.counts", s.loop("counts", s.cfg.CountTick, s.refreshCounts))
}

// loop waits for readiness, runs once, then keeps running on every tick.
// Task errors are recorded and logged, never fatal.
func (s *Service) loop(name string, tick time.Duration, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s.ready != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.ready:
			}
		}

		run := func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.sink.Exception(name)
				s.log.Error("scheduler task failed", logx.String("task", name), logx.Err(err))
			}
		}

		run()
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				run()
			}
		}
	}
}

func (s *Service) checkReminders(ctx context.Context) error {
	now := s.now()
	batch, err := s.store.PopElapsedReminders(ctx, now)
	if err != nil {
		return err
	}
	for _, rem := range batch {
		s.sink.DeliveryDelay(string(reminder.KindOneShot), now.Sub(rem.TriggerAt), s.cfg.AllowedDelay)
		out, err := s.deliver.Deliver(ctx, rem)
		if err != nil {
			s.sink.Exception("reminders.deliver")
			s.log.Error("reminder delivery blew up", logx.String("id", rem.ID), logx.Err(err))
			continue
		}
		s.log.Debug("reminder fired",
			logx.String("id", rem.ID), logx.String("outcome", out.Status.String()))
	}
	return nil
}

func (s *Service) checkIntervals(ctx context.Context) error {
	now := s.now()
	due, err := s.store.GetElapsedIntervals(ctx, now)
	if err != nil {
		return err
	}
	for _, iv := range due {
		s.sink.DeliveryDelay(string(reminder.KindInterval), now.Sub(iv.At), s.cfg.AllowedJitter)

		// Reschedule from now, not from the stored slot: a long outage must
		// produce one catch-up firing, not a backlog replay. The new slot is
		// persisted before delivery so a crash cannot double-fire.
		next, err := recurrence.Next(iv.Rule, now)
		if err != nil {
			s.log.Warn("interval has an unusable rule, flagging it",
				logx.String("id", iv.ID), logx.Err(err))
			if err := s.store.MarkIntervalOrphaned(ctx, iv.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.store.UpdateIntervalAt(ctx, iv.ID, next); err != nil {
			return err
		}

		rem := iv.Reminder
		rem.TriggerAt = iv.At
		out, err := s.deliver.Deliver(ctx, rem)
		if err != nil {
			s.sink.Exception("intervals.deliver")
			s.log.Error("interval delivery blew up", logx.String("id", iv.ID), logx.Err(err))
			continue
		}
		if out.Unresolvable() {
			s.log.Info("interval lost its target, flagging it",
				logx.String("id", iv.ID), logx.String("failure", string(out.Failure)))
			if err := s.store.MarkIntervalOrphaned(ctx, iv.ID); err != nil {
				return err
			}
			continue
		}
		s.log.Debug("interval fired",
			logx.String("id", iv.ID),
			logx.String("outcome", out.Status.String()),
			logx.Time("next", next))
	}
	return nil
}

func (s *Service) sweepOrphans(ctx context.Context) error {
	n, err := s.store.DeleteOrphanedIntervals(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.sink.IntervalDeleted(analytics.CauseOrphan, n)
		s.log.Info("swept orphaned intervals", logx.Int("count", n))
	}
	return nil
}

func (s *Service) refreshCounts(ctx context.Context) error {
	nr, err := s.store.GetReminderCount(ctx)
	if err != nil {
		return err
	}
	ni, err := s.store.GetIntervalCount(ctx)
	if err != nil {
		return err
	}
	s.sink.SetReminderCount(nr)
	s.sink.SetIntervalCount(ni)
	return nil
}
