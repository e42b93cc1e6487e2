// Package metricsvc exposes the application metrics to Prometheus.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gurudigital/pelangi/core/gamification"
)

const namespace = "pelangi"

// Metrics holds the application collectors on a dedicated registry.
// It implements gamification.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	xpAwards      *prometheus.CounterVec
	xpAmount      *prometheus.CounterVec
	levelUps      *prometheus.CounterVec
	leaderboard   *prometheus.HistogramVec
	httpDurations *prometheus.HistogramVec
}

var _ gamification.Recorder = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		xpAwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gamification",
			Name:      "xp_awards_total",
			Help:      "Number of XP awards, by source.",
		}, []string{"source"}),
		xpAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gamification",
			Name:      "xp_awarded_total",
			Help:      "XP granted (positive) or removed (negative), by source and sign.",
		}, []string{"source", "sign"}),
		levelUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gamification",
			Name:      "level_ups_total",
			Help:      "Number of level ups, by level reached.",
		}, []string{"level"}),
		leaderboard: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gamification",
			Name:      "leaderboard_duration_seconds",
			Help:      "Time spent computing a leaderboard, by scope.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies, by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.xpAwards,
		m.xpAmount,
		m.levelUps,
		m.leaderboard,
		m.httpDurations,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) XpAwarded(source string, amount int) {
	m.xpAwards.WithLabelValues(source).Inc()
	sign := "positive"
	if amount < 0 {
		sign, amount = "negative", -amount
	}
	m.xpAmount.WithLabelValues(source, sign).Add(float64(amount))
}

func (m *Metrics) LevelUp(level int) {
	m.levelUps.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) ObserveLeaderboard(scope string, d time.Duration) {
	m.leaderboard.WithLabelValues(scope).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpDurations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
