package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dialogue engine metrics. Registered on the default registry; the
// fiberprometheus middleware exposes them on /metrics alongside HTTP metrics.
var (
	turnsByMode = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_turns_total",
		Help: "Processed turns by selected orchestration mode",
	}, []string{"mode"})

	intentExtractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_intent_extractions_total",
		Help: "Primary intent extraction outcomes",
	}, []string{"outcome"}) // ok | failed

	rescuePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_rescue_passes_total",
		Help: "Rescue pass runs by pass name and outcome",
	}, []string{"pass", "outcome"}) // ran | flipped | failed

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_tool_calls_total",
		Help: "Tool executions by tool name and outcome",
	}, []string{"tool", "outcome"}) // ok | error | unknown_tool

	duplicateVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_duplicate_verdicts_total",
		Help: "Duplicate detection verdicts on calendar creates",
	}, []string{"verdict"}) // create | update | confirm

	writeVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_write_verifications_total",
		Help: "Calendar write read-back verification outcomes",
	}, []string{"operation", "outcome"}) // verified | unverified

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aria_turn_duration_seconds",
		Help:    "End-to-end turn processing time by mode",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"mode"})
)
