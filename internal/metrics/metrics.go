// Package metrics exposes bot activity as Prometheus series.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ebibot/internal/eventbus"
)

const namespace = "ebibot"

type Metrics struct {
	reg *prometheus.Registry

	notifications   *prometheus.CounterVec
	notifyPosted    prometheus.Counter
	watchdogAlerts  *prometheus.CounterVec
	watchdogFetch   prometheus.Counter
	upgrades        *prometheus.CounterVec
	upgradeDuration prometheus.Histogram
	loopDuration    *prometheus.HistogramVec
	loopErrors      *prometheus.CounterVec
}

// New builds a private registry with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Scheduled notification lifecycle events",
		}, []string{"event", "source"}),
		notifyPosted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notify_posted_total",
			Help: "Immediate notifications posted through the API",
		}),
		watchdogAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "watchdog_alerts_total",
			Help: "Overdue-task alerts sent, by severity",
		}, []string{"severity"}),
		watchdogFetch: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "watchdog_fetch_failures_total",
			Help: "Task tracker invocations that failed",
		}),
		upgrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "upgrades_total",
			Help: "Self-upgrade runs, by result",
		}, []string{"result"}),
		upgradeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "upgrade_duration_seconds",
			Help:    "Self-upgrade run time",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		loopDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "loop_duration_seconds",
			Help:    "Periodic loop tick duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		loopErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "loop_errors_total",
			Help: "Periodic loop ticks that returned an error",
		}, []string{"loop"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry is exposed for tests and ad-hoc collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// GaugeFunc registers a gauge sampled at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn)
}

// ObserveLoop matches scheduler.Observer.
func (m *Metrics) ObserveLoop(name string, took time.Duration, err error) {
	m.loopDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		m.loopErrors.WithLabelValues(name).Inc()
	}
}

// Observe folds one bus event into the counters.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.NotificationScheduled, eventbus.NotificationSent,
		eventbus.NotificationFailed, eventbus.NotificationCancelled:
		d, _ := e.Data.(eventbus.NotificationData)
		source := d.Source
		if source == "" {
			source = "unknown"
		}
		m.notifications.WithLabelValues(eventName(e.Type), source).Inc()
	case eventbus.NotifyPosted:
		m.notifyPosted.Inc()
	case eventbus.WatchdogAlerted:
		d, _ := e.Data.(eventbus.WatchdogData)
		m.watchdogAlerts.WithLabelValues(d.Severity).Inc()
	case eventbus.WatchdogFetchFailed:
		m.watchdogFetch.Inc()
	case eventbus.UpgradeFinished:
		d, _ := e.Data.(eventbus.UpgradeData)
		result := "failed"
		if d.OK {
			result = "ok"
		}
		m.upgrades.WithLabelValues(result).Inc()
		m.upgradeDuration.Observe(d.Duration.Seconds())
	}
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

// eventName strips the "notification." prefix.
func eventName(t string) string {
	return t[strings.LastIndexByte(t, '.')+1:]
}
