// Package metrics expone las métricas del trading loop en formato Prometheus.
//
//   - edgebot_cycles_total                       ciclos completados
//   - edgebot_cycle_duration_seconds             duración de fetch + ciclo + save
//   - edgebot_entries_total{side}                posiciones abiertas
//   - edgebot_exits_total{reason,side}           posiciones cerradas por regla
//   - edgebot_skips_total{reason}                candidatos descartados
//   - edgebot_ticker_errors_total{reason}        errores recuperables por ticker
//   - edgebot_fatal_errors_total                 errores que detuvieron el loop
//   - edgebot_open_positions, edgebot_open_exposure_usd, edgebot_cumulative_pnl_usd,
//     edgebot_cumulative_fees_usd, edgebot_daily_trades, edgebot_last_cycle_timestamp_seconds
package metrics

import (
	"net/http"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine/live"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ live.Recorder = (*Collector)(nil)

const namespace = "edgebot"

// Collector implementa live.Recorder sobre un registry propio, así cada
// proceso (o test) tiene su propio conjunto de series.
type Collector struct {
	registry *prometheus.Registry

	cycles       prometheus.Counter
	cycleSeconds prometheus.Histogram
	entries      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	skips        *prometheus.CounterVec
	tickerErrors *prometheus.CounterVec
	fatal        prometheus.Counter

	openPositions prometheus.Gauge
	openExposure  prometheus.Gauge
	pnl           prometheus.Gauge
	fees          prometheus.Gauge
	dailyTrades   prometheus.Gauge
	lastCycle     prometheus.Gauge
}

// NewCollector crea y registra todas las métricas.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Completed trading cycles.",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of one cycle (quote fetch, engine, save).",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_total",
			Help: "Positions opened, by side.",
		}, []string{"side"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exits_total",
			Help: "Positions closed, by exit reason and side.",
		}, []string{"reason", "side"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "skips_total",
			Help: "Entry candidates skipped, by reason.",
		}, []string{"reason"}),
		tickerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticker_errors_total",
			Help: "Recoverable per-ticker errors, by reason.",
		}, []string{"reason"}),
		fatal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fatal_errors_total",
			Help: "Errors that stopped the trading loop.",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions",
			Help: "Open positions after the last cycle.",
		}),
		openExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_exposure_usd",
			Help: "Notional committed in open positions.",
		}),
		pnl: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cumulative_pnl_usd",
			Help: "Realized PnL net of fees since the state was created.",
		}),
		fees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cumulative_fees_usd",
			Help: "Fees paid since the state was created.",
		}),
		dailyTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "daily_trades",
			Help: "Entries in the current UTC trading day.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.",
		}),
	}

	c.registry.MustRegister(
		c.cycles, c.cycleSeconds, c.entries, c.exits, c.skips, c.tickerErrors, c.fatal,
		c.openPositions, c.openExposure, c.pnl, c.fees, c.dailyTrades, c.lastCycle,
	)
	return c
}

// Registry devuelve el registry, útil para tests y para registrar collectors extra.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler sirve el registry en formato de exposición Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCycle actualiza contadores y gauges con el resultado de un ciclo.
func (c *Collector) ObserveCycle(res domain.CycleResult, took time.Duration) {
	c.cycles.Inc()
	c.cycleSeconds.Observe(took.Seconds())

	for _, p := range res.Entries {
		c.entries.WithLabelValues(string(p.Side)).Inc()
	}
	for _, p := range res.Exits {
		c.exits.WithLabelValues(string(p.ExitReason), string(p.Side)).Inc()
	}
	for _, s := range res.Skips {
		c.skips.WithLabelValues(s.Reason).Inc()
	}
	for _, e := range res.Errors {
		c.tickerErrors.WithLabelValues(e.Reason).Inc()
	}

	c.openPositions.Set(float64(res.OpenPositions))
	c.openExposure.Set(res.OpenExposure)
	c.pnl.Set(res.CumulativePnL)
	c.fees.Set(res.CumulativeFees)
	c.dailyTrades.Set(float64(res.DailyTradeCount))
	if !res.At.IsZero() {
		c.lastCycle.Set(float64(res.At.Unix()))
	}
}

// ObserveFatal cuenta un error fatal del loop.
func (c *Collector) ObserveFatal(error) {
	c.fatal.Inc()
}
