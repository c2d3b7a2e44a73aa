// Package metrics exposes Prometheus instrumentation for the robot engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	CandlesProcessed prometheus.Counter
	TradesFilled     *prometheus.CounterVec
	AlertsPending    prometheus.Gauge
	OpenPositions    prometheus.Gauge
	RunErrors        prometheus.Counter
}

// New registers the engine collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CandlesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "robotengine",
			Name:      "candles_processed_total",
			Help:      "Number of candles fed through the driver.",
		}),
		TradesFilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "robotengine",
			Name:      "trades_filled_total",
			Help:      "Number of confirmed fills by trade action.",
		}, []string{"action"}),
		AlertsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "robotengine",
			Name:      "alerts_pending",
			Help:      "Pending order intents across all positions.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "robotengine",
			Name:      "open_positions",
			Help:      "Positions currently new or open.",
		}),
		RunErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "robotengine",
			Name:      "run_errors_total",
			Help:      "Driver cycles aborted by an error.",
		}),
	}
}
