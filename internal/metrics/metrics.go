// Package metrics holds the Prometheus collectors of the server. All
// recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockgame"

type Metrics struct {
	registry *prometheus.Registry

	trades            *prometheus.CounterVec
	tradeDuration     *prometheus.HistogramVec
	recomputes        *prometheus.CounterVec
	recomputeDuration prometheus.Histogram
	rankedUsers       prometheus.Gauge
	simulationRuns    prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades by side and outcome.",
		}, []string{"side", "outcome"}),
		tradeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_duration_seconds",
			Help:      "Time spent executing a trade, including lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_recompute_total",
			Help:      "Leaderboard recompute cycles by outcome.",
		}, []string{"outcome"}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leaderboard_recompute_duration_seconds",
			Help:      "Duration of a leaderboard recompute cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		rankedUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leaderboard_ranked_users",
			Help:      "Visible users ranked by the last successful cycle.",
		}),
		simulationRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_simulation_runs_total",
			Help:      "Completed price simulation runs.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.trades, m.tradeDuration,
		m.recomputes, m.recomputeDuration, m.rankedUsers,
		m.simulationRuns, m.httpRequests,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveTrade(side, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, outcome).Inc()
	m.tradeDuration.WithLabelValues(side).Observe(d.Seconds())
}

func (m *Metrics) ObserveRecompute(err error, ranked int, d time.Duration) {
	if m == nil {
		return
	}
	m.recomputeDuration.Observe(d.Seconds())
	if err != nil {
		m.recomputes.WithLabelValues("error").Inc()
		return
	}
	m.recomputes.WithLabelValues("ok").Inc()
	m.rankedUsers.Set(float64(ranked))
}

func (m *Metrics) IncSimulation() {
	if m == nil {
		return
	}
	m.simulationRuns.Inc()
}

// Gin counts requests by route template so path parameters do not explode
// label cardinality.
func (m *Metrics) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
