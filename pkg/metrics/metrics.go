// Package metrics exposes tick outcomes and the latest published values as
// Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raterudder/energystats/pkg/types"
)

// Tick results.
const (
	ResultSuccess    = "success"
	ResultNotReady   = "not_ready"
	ResultInProgress = "in_progress"
	ResultError      = "error"
)

// Metrics holds the collectors. A nil *Metrics discards every observation.
type Metrics struct {
	registry     *prometheus.Registry
	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	resets       *prometheus.CounterVec
	saveFailures *prometheus.CounterVec
	counters     *prometheus.GaugeVec
	ratios       *prometheus.GaugeVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energystats_ticks_total",
			Help: "Total ticks run by site and result.",
		}, []string{"site", "result"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "energystats_tick_duration_seconds",
			Help:    "Histogram of tick durations by site.",
			Buckets: prometheus.DefBuckets,
		}, []string{"site"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energystats_daily_resets_total",
			Help: "Total daily resets by site.",
		}, []string{"site"}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energystats_state_save_failures_total",
			Help: "Total failed state saves by site.",
		}, []string{"site"}),
		counters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "energystats_energy_kwh",
			Help: "Current energy counter totals in kWh.",
		}, []string{"site", "key"}),
		ratios: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "energystats_mix_ratio",
			Help: "Current PV share of each energy mix (0-1).",
		}, []string{"site", "key"}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.resets,
		m.saveFailures,
		m.counters,
		m.ratios,
	)
	return m
}

// Configured returns the process-wide metrics.
func Configured() *Metrics {
	return New()
}

// ObserveTick records one tick attempt.
func (m *Metrics) ObserveTick(siteID, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(siteID, result).Inc()
	m.tickDuration.WithLabelValues(siteID).Observe(d.Seconds())
}

// ObserveReset records a daily reset.
func (m *Metrics) ObserveReset(siteID string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(siteID).Inc()
}

// ObserveSaveFailure records a failed state save.
func (m *Metrics) ObserveSaveFailure(siteID string) {
	if m == nil {
		return
	}
	m.saveFailures.WithLabelValues(siteID).Inc()
}

// ObserveSnapshot publishes the snapshot's counters and ratios as gauges.
func (m *Metrics) ObserveSnapshot(siteID string, snap types.Snapshot) {
	if m == nil {
		return
	}
	// drop series cleared by a reset
	m.counters.DeletePartialMatch(prometheus.Labels{"site": siteID})
	m.ratios.DeletePartialMatch(prometheus.Labels{"site": siteID})
	for k, v := range snap.Counters {
		m.counters.WithLabelValues(siteID, string(k)).Set(v)
	}
	for k, v := range snap.Ratios {
		m.ratios.WithLabelValues(siteID, k.RatioKey()).Set(v)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
