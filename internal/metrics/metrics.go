// Package metrics exposes guard and scheduler activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements guard.Metrics and scheduler.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	guardEvents    *prometheus.CounterVec
	guardTriggers  *prometheus.CounterVec
	timerScheduled *prometheus.CounterVec
	timerFires     *prometheus.CounterVec
	timerCancels   *prometheus.CounterVec
	timerPending   *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		guardEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_events_total",
			Help: "Events evaluated by the antinuke guard.",
		}, []string{"category"}),
		guardTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_triggers_total",
			Help: "Thresholds crossed, by category and punishment.",
		}, []string{"category", "punishment"}),
		timerScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_scheduled_total",
			Help: "Timers scheduled.",
		}, []string{"kind"}),
		timerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_fires_total",
			Help: "Timers fired, by result.",
		}, []string{"kind", "result"}),
		timerCancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_cancels_total",
			Help: "Timers cancelled or replaced before firing.",
		}, []string{"kind"}),
		timerPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_pending",
			Help: "Timers armed and waiting.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.guardEvents, m.guardTriggers,
		m.timerScheduled, m.timerFires, m.timerCancels, m.timerPending,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) GuardEvent(category string) {
	m.guardEvents.WithLabelValues(category).Inc()
}

func (m *Metrics) GuardTrigger(category, punishment string) {
	m.guardTriggers.WithLabelValues(category, punishment).Inc()
}

func (m *Metrics) TimerScheduled(kind string) {
	m.timerScheduled.WithLabelValues(kind).Inc()
}

func (m *Metrics) TimerFired(kind, result string) {
	m.timerFires.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) TimerCancelled(kind string) {
	m.timerCancels.WithLabelValues(kind).Inc()
}

func (m *Metrics) TimerPending(kind string, delta int) {
	m.timerPending.WithLabelValues(kind).Add(float64(delta))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
