// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Tick metrics
	TicksTotal   *prometheus.CounterVec
	TickDuration prometheus.Histogram

	// Scan metrics
	SeedsRejected      *prometheus.CounterVec
	CandidatesSelected *prometheus.CounterVec
	ProviderBlocked    *prometheus.CounterVec

	// Position metrics
	OpenPositions   prometheus.Gauge
	EntriesTotal    prometheus.Counter
	ExitsTotal      *prometheus.CounterVec
	RealizedPnLSOL  prometheus.Counter
	RealizedLossSOL prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "soltrader"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of ticks by status",
		}, []string{"status"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Tick execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		SeedsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "seeds_rejected_total",
			Help:      "Total number of seeds rejected by gate",
		}, []string{"reason"}),
		CandidatesSelected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_selected_total",
			Help:      "Total number of candidates selected by tier",
		}, []string{"tier"}),
		ProviderBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "provider_blocked_total",
			Help:      "Total number of provider quota blocks",
		}, []string{"provider"}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open",
			Help:      "Current number of open positions",
		}),
		EntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "entries_total",
			Help:      "Total number of entries executed",
		}),
		ExitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exits_total",
			Help:      "Total number of exits by reason",
		}, []string{"reason"}),
		RealizedPnLSOL: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_profit_sol_total",
			Help:      "Cumulative realized profit in SOL",
		}),
		RealizedLossSOL: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_loss_sol_total",
			Help:      "Cumulative realized loss in SOL",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records one completed tick.
func RecordTick(status string, durationSeconds float64) {
	DefaultMetrics.TicksTotal.WithLabelValues(status).Inc()
	DefaultMetrics.TickDuration.Observe(durationSeconds)
}

// RecordRejections adds per-gate rejection counts from one scan.
func RecordRejections(counts map[string]int) {
	for reason, n := range counts {
		DefaultMetrics.SeedsRejected.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordCandidate records a selected candidate by tier.
func RecordCandidate(tier string) {
	DefaultMetrics.CandidatesSelected.WithLabelValues(tier).Inc()
}

// RecordProviderBlocked records a quota block for a provider.
func RecordProviderBlocked(provider string) {
	DefaultMetrics.ProviderBlocked.WithLabelValues(provider).Inc()
}

// RecordEntry records an executed entry.
func RecordEntry(openPositions int) {
	DefaultMetrics.EntriesTotal.Inc()
	DefaultMetrics.OpenPositions.Set(float64(openPositions))
}

// RecordExit records an executed exit with realized PnL.
func RecordExit(reason string, pnlSOL float64, openPositions int) {
	DefaultMetrics.ExitsTotal.WithLabelValues(reason).Inc()
	DefaultMetrics.OpenPositions.Set(float64(openPositions))
	if pnlSOL >= 0 {
		DefaultMetrics.RealizedPnLSOL.Add(pnlSOL)
	} else {
		DefaultMetrics.RealizedLossSOL.Add(-pnlSOL)
	}
}
