package analytics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is a Prometheus-backed Sink.
type Collector struct {
	guilds    prometheus.Gauge
	reminders prometheus.Gauge
	intervals prometheus.Gauge

	guildsJoined prometheus.Counter
	guildsLeft   prometheus.Counter

	remindersCreated prometheus.Counter
	remindersDeleted *prometheus.CounterVec
	intervalsCreated prometheus.Counter
	intervalsDeleted *prometheus.CounterVec

	deliveryFailed *prometheus.CounterVec
	deliveryDelay  *prometheus.HistogramVec
	deliveryLate   *prometheus.CounterVec
	exceptions     *prometheus.CounterVec
}

// NewCollector builds the Sink and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		guilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remindbot_guilds",
			Help: "Groups the bot is currently a member of.",
		}),
		reminders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remindbot_reminders_pending",
			Help: "One-shot reminders waiting to fire.",
		}),
		intervals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "remindbot_intervals_pending",
			Help: "Recurring reminders waiting to fire.",
		}),
		guildsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_guilds_joined_total",
			Help: "Groups joined since start.",
		}),
		guildsLeft: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_guilds_left_total",
			Help: "Groups left since start.",
		}),
		remindersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_reminders_created_total",
			Help: "One-shot reminders created.",
		}),
		remindersDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_reminders_deleted_total",
			Help: "One-shot reminders removed before firing.",
		}, []string{"cause"}),
		intervalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindbot_intervals_created_total",
			Help: "Recurring reminders created.",
		}),
		intervalsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_intervals_deleted_total",
			Help: "Recurring reminders removed.",
		}, []string{"cause"}),
		deliveryFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_delivery_failed_total",
			Help: "Delivery attempts that died, by failure point.",
		}, []string{"point"}),
		deliveryDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remindbot_delivery_delay_seconds",
			Help:    "Observed lag between due time and delivery attempt.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}, []string{"kind"}),
		deliveryLate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_delivery_late_total",
			Help: "Deliveries whose lag exceeded the allowed threshold.",
		}, []string{"kind"}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindbot_task_exceptions_total",
			Help: "Recovered panics and unexpected errors, by task.",
		}, []string{"task"}),
	}

	reg.MustRegister(
		c.guilds, c.reminders, c.intervals,
		c.guildsJoined, c.guildsLeft,
		c.remindersCreated, c.remindersDeleted,
		c.intervalsCreated, c.intervalsDeleted,
		c.deliveryFailed, c.deliveryDelay, c.deliveryLate, c.exceptions,
	)
	return c
}

func (c *Collector) GuildAdded()   { c.guildsJoined.Inc() }
func (c *Collector) GuildRemoved() { c.guildsLeft.Inc() }

func (c *Collector) ReminderCreated() { c.remindersCreated.Inc() }
func (c *Collector) ReminderDeleted(cause Cause, n int) {
	c.remindersDeleted.WithLabelValues(string(cause)).Add(float64(n))
}
func (c *Collector) IntervalCreated() { c.intervalsCreated.Inc() }
func (c *Collector) IntervalDeleted(cause Cause, n int) {
	c.intervalsDeleted.WithLabelValues(string(cause)).Add(float64(n))
}

func (c *Collector) DeliveryFailed(point FailurePoint) {
	c.deliveryFailed.WithLabelValues(string(point)).Inc()
}

func (c *Collector) DeliveryDelay(kind string, delay, allowed time.Duration) {
	c.deliveryDelay.WithLabelValues(kind).Observe(delay.Seconds())
	if delay > allowed {
		c.deliveryLate.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) Exception(task string) { c.exceptions.WithLabelValues(task).Inc() }

func (c *Collector) SetReminderCount(n int) { c.reminders.Set(float64(n)) }
func (c *Collector) SetIntervalCount(n int) { c.intervals.Set(float64(n)) }
func (c *Collector) SetGuildCount(n int)    { c.guilds.Set(float64(n)) }

var _ Sink = (*Collector)(nil)
