package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's Prometheus counters and histograms: phase
// durations, barrier outcomes, center rounds, and tool dispatch counts.
type Metrics struct {
	// PhaseDuration measures how long each timed engine phase takes.
	// Labels: phase (formulation|confirmation|resonance|offering|center)
	PhaseDuration *prometheus.HistogramVec

	// BarrierOutcome counts how offering-phase barrier runs resolve per
	// participant. Labels: outcome (replied|failed|timed_out)
	BarrierOutcome *prometheus.CounterVec

	// CenterRounds records how many coordinator rounds a negotiation took
	// before reaching a plan.
	CenterRounds prometheus.Histogram

	// ToolDispatchCounter counts center tool calls by name and outcome.
	// Labels: tool_name, status (success|error)
	ToolDispatchCounter *prometheus.CounterVec

	// NegotiationsTotal counts negotiations by terminal state.
	// Labels: state (COMPLETED|CANCELLED|FAILED)
	NegotiationsTotal *prometheus.CounterVec

	// ActiveNegotiations tracks negotiations currently in flight.
	ActiveNegotiations prometheus.Gauge

	// SubNegotiationDepth records the recursion depth reached by spawned
	// child negotiations.
	SubNegotiationDepth prometheus.Histogram
}

// NewMetrics registers and returns a fresh Metrics collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		PhaseDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "towow_phase_duration_seconds",
				Help:    "Duration of each negotiation phase in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"phase"},
		),

		BarrierOutcome: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "towow_barrier_outcomes_total",
				Help: "Total offering-phase barrier outcomes by participant result",
			},
			[]string{"outcome"},
		),

		CenterRounds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "towow_center_rounds",
				Help:    "Number of coordinator rounds consumed per negotiation",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
			},
		),

		ToolDispatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "towow_tool_dispatch_total",
				Help: "Total center tool calls by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		NegotiationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "towow_negotiations_total",
				Help: "Total negotiations by terminal state",
			},
			[]string{"state"},
		),

		ActiveNegotiations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "towow_active_negotiations",
				Help: "Current number of in-flight negotiations",
			},
		),

		SubNegotiationDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "towow_sub_negotiation_depth",
				Help:    "Recursion depth reached by spawned sub-negotiations",
				Buckets: []float64{0, 1, 2, 3},
			},
		),
	}
}
